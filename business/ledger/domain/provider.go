// Package domain contains the core domain types for the ledger context.
package domain

import "time"

// Provider is a configured RPC endpoint candidate. All fields except Health
// are fixed at registration time.
type Provider struct {
	Name      string
	RPCURL    string
	WSURL     string
	APIKey    string
	Priority  int // lower = preferred
	RateLimit int // advertised requests/sec ceiling, informational
	Timeout   time.Duration

	Health ProviderHealth
}

// ProviderHealth is the mutable health sub-record of a Provider. Only the
// registry mutates it; everything else sees copies.
type ProviderHealth struct {
	Healthy             bool
	LastCheckedAt       time.Time
	Latency             time.Duration
	ConsecutiveFailures int
}

// ProbeResult is the outcome of a single liveness probe.
type ProbeResult struct {
	Provider string
	Healthy  bool
	Latency  time.Duration
	Err      error
}

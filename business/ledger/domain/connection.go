package domain

import "time"

// ConnectionState represents the state of the managed connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// ConnectionStatus is a point-in-time snapshot of the managed connection.
// Connected=true implies ProviderName is set; the snapshot is taken under a
// single lock so the two can never disagree.
type ConnectionStatus struct {
	State             ConnectionState  `json:"state"`
	Connected         bool             `json:"connected"`
	ProviderName      string           `json:"providerName,omitempty"`
	ConnectedAt       time.Time        `json:"connectedAt,omitzero"`
	LastHeight        uint64           `json:"lastHeight"`
	ReconnectAttempts int              `json:"reconnectAttempts"`
	AggregateStats    AggregateStats   `json:"aggregateStats"`
	Providers         []ProviderStatus `json:"providers,omitempty"`
}

// AggregateStats are lifetime counters for the managed connection. They only
// ever grow; a successful reconnect does not reset them.
type AggregateStats struct {
	ConnectionsLost   uint64 `json:"connectionsLost"`
	ReconnectAttempts uint64 `json:"reconnectAttempts"`
	HeadsDelivered    uint64 `json:"headsDelivered"`
}

// ProviderStatus is the health view of one provider exposed over the status
// boundary.
type ProviderStatus struct {
	Name                string        `json:"name"`
	Priority            int           `json:"priority"`
	Healthy             bool          `json:"healthy"`
	LatencyMs           int64         `json:"latencyMs"`
	LastCheckedAt       time.Time     `json:"lastCheckedAt,omitzero"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Latency             time.Duration `json:"-"`
}

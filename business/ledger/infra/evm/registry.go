// Package evm implements the provider registry, health prober, connection
// supervisor, reconnection scheduler, subscription multiplexer and query
// facade for EVM JSON-RPC providers.
package evm

import (
	"sort"
	"sync"
	"time"

	"github.com/credscope/ledgerlink/internal/apperror"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

// Registry holds the configured providers and their live health records.
// Providers are immutable after Register except for the health sub-record,
// which mutates in place behind the registry mutex. Accessors hand out
// copies, never references into the arena.
type Registry struct {
	mu        sync.Mutex
	providers []domain.Provider // registration order
	index     map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a provider. Providers start healthy so the first connect
// attempt has candidates before any probe sweep has run; the sweep corrects
// the record within one interval.
func (r *Registry) Register(p domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Name == "" {
		return apperror.Validation(apperror.CodeRequiredField, "provider name")
	}
	if _, ok := r.index[p.Name]; ok {
		return apperror.Validation(apperror.CodeDuplicateProvider, p.Name)
	}

	p.Health = domain.ProviderHealth{Healthy: true}
	r.index[p.Name] = len(r.providers)
	r.providers = append(r.providers, p)
	return nil
}

// HealthyInPriorityOrder returns the healthy providers sorted ascending by
// priority, ties broken by registration order. An empty slice is a valid,
// expected result, not an error.
func (r *Registry) HealthyInPriorityOrder() []domain.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Health.Healthy {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// All returns every registered provider in registration order.
func (r *Registry) All() []domain.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// MarkHealthy records a successful probe, resetting the failure streak.
func (r *Registry) MarkHealthy(name string, latency time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[name]
	if !ok {
		return apperror.NotFound(apperror.CodeUnknownProvider, name)
	}
	r.providers[i].Health = domain.ProviderHealth{
		Healthy:       true,
		LastCheckedAt: time.Now().UTC(),
		Latency:       latency,
	}
	return nil
}

// MarkUnhealthy records a failed probe or connect, incrementing the
// failure streak.
func (r *Registry) MarkUnhealthy(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[name]
	if !ok {
		return apperror.NotFound(apperror.CodeUnknownProvider, name)
	}
	h := &r.providers[i].Health
	h.Healthy = false
	h.LastCheckedAt = time.Now().UTC()
	h.ConsecutiveFailures++
	return nil
}

// Apply folds a probe result into the health record.
func (r *Registry) Apply(res domain.ProbeResult) error {
	if res.Healthy {
		return r.MarkHealthy(res.Provider, res.Latency)
	}
	return r.MarkUnhealthy(res.Provider)
}

// Snapshot returns the per-provider status view in registration order.
func (r *Registry) Snapshot() []domain.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ProviderStatus, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, domain.ProviderStatus{
			Name:                p.Name,
			Priority:            p.Priority,
			Healthy:             p.Health.Healthy,
			LatencyMs:           p.Health.Latency.Milliseconds(),
			LastCheckedAt:       p.Health.LastCheckedAt,
			ConsecutiveFailures: p.Health.ConsecutiveFailures,
			Latency:             p.Health.Latency,
		})
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

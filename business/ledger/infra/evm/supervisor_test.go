package evm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/credscope/ledgerlink/internal/apperror"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

func newTestSupervisor(t *testing.T, registry *Registry) *Supervisor {
	t.Helper()
	log := testLogger()
	prober, err := NewProber(log, registry, time.Minute)
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}
	sup := NewSupervisor(log, registry, prober, NewMux(log))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sup.Start(ctx)
	return sup
}

func TestSupervisorConnectSelectsByPriority(t *testing.T) {
	primary := newTestBackend(t)
	secondary := newTestBackend(t)

	registry := NewRegistry()
	registry.Register(secondary.provider("secondary", 2))
	registry.Register(primary.provider("primary", 1))

	sup := newTestSupervisor(t, registry)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	st := sup.Status()
	if !st.Connected || st.ProviderName != "primary" {
		t.Fatalf("expected primary active, got %+v", st)
	}
	if st.State != domain.StateConnected {
		t.Fatalf("expected connected state, got %s", st.State)
	}
	if st.LastHeight == 0 {
		t.Fatal("expected height known after connect")
	}
}

// Failover: the preferred provider is unreachable, the next one
// answers. Connect lands on the fallback and the failed candidate carries a
// failure streak of 1.
func TestSupervisorConnectFailsOver(t *testing.T) {
	fallback := newTestBackend(t)

	registry := NewRegistry()
	registry.Register(deadProvider("flaky", 1))
	registry.Register(fallback.provider("fallback", 2))

	sup := newTestSupervisor(t, registry)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if st := sup.Status(); st.ProviderName != "fallback" {
		t.Fatalf("expected fallback active, got %s", st.ProviderName)
	}
	for _, ps := range registry.Snapshot() {
		if ps.Name == "flaky" {
			if ps.Healthy || ps.ConsecutiveFailures != 1 {
				t.Fatalf("expected flaky unhealthy with streak 1, got %+v", ps)
			}
		}
	}
}

func TestSupervisorConnectNoHealthyProvider(t *testing.T) {
	registry := NewRegistry()
	registry.Register(deadProvider("only", 1))
	registry.MarkUnhealthy("only")

	sup := newTestSupervisor(t, registry)
	err := sup.Connect(context.Background())
	if !apperror.IsCode(err, apperror.CodeNoHealthyProvider) {
		t.Fatalf("expected no healthy provider error, got %v", err)
	}
	if st := sup.Status(); st.Connected {
		t.Fatal("expected disconnected after failed connect")
	}
}

func TestSupervisorConnectAllProvidersFailed(t *testing.T) {
	registry := NewRegistry()
	registry.Register(deadProvider("a", 1))
	registry.Register(deadProvider("b", 2))

	sup := newTestSupervisor(t, registry)
	err := sup.Connect(context.Background())
	if !apperror.IsCode(err, apperror.CodeAllProvidersFailed) {
		t.Fatalf("expected all providers failed error, got %v", err)
	}
	for _, ps := range registry.Snapshot() {
		if ps.Healthy {
			t.Fatalf("expected %s marked unhealthy", ps.Name)
		}
	}
}

func TestSupervisorConnectIdempotentWhileConnected(t *testing.T) {
	backend := newTestBackend(t)
	registry := NewRegistry()
	registry.Register(backend.provider("only", 1))

	sup := newTestSupervisor(t, registry)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	first := sup.Status().ConnectedAt
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if got := sup.Status().ConnectedAt; !got.Equal(first) {
		t.Fatal("second connect replaced the active connection")
	}
}

func TestSupervisorUnsolicitedDropMarksUnhealthyAndNotifies(t *testing.T) {
	backend := newTestBackend(t)
	registry := NewRegistry()
	registry.Register(backend.provider("only", 1))

	sup := newTestSupervisor(t, registry)
	var downs atomic.Int32
	sup.OnDown(func(error) { downs.Add(1) })

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	backend.dropWS()

	waitFor(t, 3*time.Second, func() bool {
		return downs.Load() == 1
	}, "down notification never arrived")

	st := sup.Status()
	if st.Connected || st.State != domain.StateDisconnected {
		t.Fatalf("expected disconnected after drop, got %+v", st)
	}
	if st.AggregateStats.ConnectionsLost != 1 {
		t.Fatalf("expected 1 lost connection in aggregate stats, got %d", st.AggregateStats.ConnectionsLost)
	}
	snap := registry.Snapshot()
	if snap[0].Healthy {
		t.Fatal("expected active provider marked unhealthy after drop")
	}
	if _, err := sup.Client(); !apperror.IsCode(err, apperror.CodeNotConnected) {
		t.Fatalf("expected not connected from Client, got %v", err)
	}
}

func TestSupervisorDisconnectIsIdempotentAndSilent(t *testing.T) {
	backend := newTestBackend(t)
	registry := NewRegistry()
	registry.Register(backend.provider("only", 1))

	sup := newTestSupervisor(t, registry)
	var downs atomic.Int32
	sup.OnDown(func(error) { downs.Add(1) })

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := sup.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := sup.Disconnect(context.Background()); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}

	if got := downs.Load(); got != 0 {
		t.Fatalf("deliberate disconnect fired %d down notifications", got)
	}
	if snap := registry.Snapshot(); !snap[0].Healthy {
		t.Fatal("deliberate disconnect must not penalize provider health")
	}
}

package evm

import (
	"testing"
	"time"

	"github.com/credscope/ledgerlink/internal/apperror"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(domain.Provider{Name: "alchemy", Priority: 1}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(domain.Provider{Name: "alchemy", Priority: 2})
	if !apperror.IsCode(err, apperror.CodeDuplicateProvider) {
		t.Fatalf("expected duplicate provider error, got %v", err)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 provider, got %d", got)
	}
}

func TestRegistryPriorityOrderWithRegistrationTieBreak(t *testing.T) {
	r := NewRegistry()
	for _, p := range []domain.Provider{
		{Name: "c", Priority: 2},
		{Name: "a", Priority: 1},
		{Name: "b", Priority: 1},
		{Name: "d", Priority: 3},
	} {
		if err := r.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.Name, err)
		}
	}

	got := r.HealthyInPriorityOrder()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
}

func TestRegistryHealthyFiltersUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.Provider{Name: "a", Priority: 1})
	r.Register(domain.Provider{Name: "b", Priority: 2})

	if err := r.MarkUnhealthy("a"); err != nil {
		t.Fatalf("mark unhealthy: %v", err)
	}

	got := r.HealthyInPriorityOrder()
	if len(got) != 1 || got[0].Name != "b" {
		t.Fatalf("expected only b healthy, got %v", got)
	}

	// All unhealthy is a valid empty state, not an error.
	r.MarkUnhealthy("b")
	if got := r.HealthyInPriorityOrder(); len(got) != 0 {
		t.Fatalf("expected empty healthy set, got %v", got)
	}
}

func TestRegistryFailureStreakAndRecovery(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.Provider{Name: "a", Priority: 1})

	r.MarkUnhealthy("a")
	r.MarkUnhealthy("a")
	r.MarkUnhealthy("a")

	snap := r.Snapshot()
	if snap[0].ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", snap[0].ConsecutiveFailures)
	}

	if err := r.MarkHealthy("a", 120*time.Millisecond); err != nil {
		t.Fatalf("mark healthy: %v", err)
	}
	snap = r.Snapshot()
	if snap[0].ConsecutiveFailures != 0 {
		t.Fatalf("expected failure streak reset, got %d", snap[0].ConsecutiveFailures)
	}
	if !snap[0].Healthy || snap[0].LatencyMs != 120 {
		t.Fatalf("unexpected health record: %+v", snap[0])
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	if err := r.MarkHealthy("ghost", time.Millisecond); !apperror.IsCode(err, apperror.CodeUnknownProvider) {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
	if err := r.MarkUnhealthy("ghost"); !apperror.IsCode(err, apperror.CodeUnknownProvider) {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestRegistryAccessorsReturnCopies(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.Provider{Name: "a", Priority: 1})

	got := r.HealthyInPriorityOrder()
	got[0].Health.Healthy = false
	got[0].Priority = 99

	fresh := r.HealthyInPriorityOrder()
	if len(fresh) != 1 || fresh[0].Priority != 1 {
		t.Fatal("mutating an accessor result leaked into the registry")
	}
}

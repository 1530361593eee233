package app

import (
	"context"
	"math/big"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

// ConnectionManager owns the single active provider connection.
type ConnectionManager interface {
	// Connect selects a healthy provider and establishes the connection.
	Connect(ctx context.Context) error

	// Disconnect closes the active connection. Idempotent.
	Disconnect(ctx context.Context) error

	// Status returns the in-memory connection snapshot. Never probes.
	Status() domain.ConnectionStatus
}

// HealthChecker probes providers on demand.
type HealthChecker interface {
	// CheckNow runs one probe sweep and returns the per-provider results.
	CheckNow(ctx context.Context) []domain.ProbeResult
}

// ProviderDirectory exposes the per-provider health view.
type ProviderDirectory interface {
	Snapshot() []domain.ProviderStatus
}

// RetryPolicy reports reconnect progress.
type RetryPolicy interface {
	Attempts() int
	Terminal() bool

	// TotalFired is the lifetime attempt count, never reset.
	TotalFired() uint64
}

// SubscriptionHub registers durable block and address subscriptions.
type SubscriptionHub interface {
	SubscribeBlocks(cb domain.BlockCallback) domain.SubHandle
	SubscribeAddress(addr string, cb domain.AddressCallback) (domain.SubHandle, error)
	Unsubscribe(h domain.SubHandle)

	// HeadsDelivered is the lifetime count of heads fanned out.
	HeadsDelivered() uint64
}

// QueryFacade performs one-shot point reads against the active connection.
type QueryFacade interface {
	GetTransaction(ctx context.Context, hash string) (domain.Transaction, error)
	GetTransactionReceipt(ctx context.Context, hash string) (domain.Receipt, error)
	GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error)
	GetCurrentHeight(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, addr string) (uint64, error)
}

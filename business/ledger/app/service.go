// Package app contains application services and port definitions for the ledger context.
package app

import (
	"context"
	"math/big"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

// LedgerService is the boundary other modules consume: connection status,
// manual health checks, point reads and subscription registration.
type LedgerService struct {
	conn      ConnectionManager
	checker   HealthChecker
	providers ProviderDirectory
	retry     RetryPolicy
	subs      SubscriptionHub
	queries   QueryFacade
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	conn ConnectionManager,
	checker HealthChecker,
	providers ProviderDirectory,
	retry RetryPolicy,
	subs SubscriptionHub,
	queries QueryFacade,
) *LedgerService {
	return &LedgerService{
		conn:      conn,
		checker:   checker,
		providers: providers,
		retry:     retry,
		subs:      subs,
		queries:   queries,
	}
}

// GetConnectionStatus assembles the full status snapshot from in-memory
// state. It never triggers a probe.
func (s *LedgerService) GetConnectionStatus(ctx context.Context) domain.ConnectionStatus {
	st := s.conn.Status()
	st.ReconnectAttempts = s.retry.Attempts()
	st.AggregateStats.ReconnectAttempts = s.retry.TotalFired()
	st.AggregateStats.HeadsDelivered = s.subs.HeadsDelivered()
	st.Providers = s.providers.Snapshot()
	return st
}

// PerformHealthCheck runs an immediate out-of-band probe sweep and returns
// the per-provider results.
func (s *LedgerService) PerformHealthCheck(ctx context.Context) []domain.ProbeResult {
	return s.checker.CheckNow(ctx)
}

// Connect establishes the managed connection.
func (s *LedgerService) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Disconnect closes the managed connection. Idempotent.
func (s *LedgerService) Disconnect(ctx context.Context) error {
	return s.conn.Disconnect(ctx)
}

// GetTransaction fetches a transaction by hash.
func (s *LedgerService) GetTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	return s.queries.GetTransaction(ctx, hash)
}

// GetTransactionReceipt fetches a receipt by transaction hash.
func (s *LedgerService) GetTransactionReceipt(ctx context.Context, hash string) (domain.Receipt, error) {
	return s.queries.GetTransactionReceipt(ctx, hash)
}

// GetBlockByNumber fetches a block with its transactions.
func (s *LedgerService) GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	return s.queries.GetBlockByNumber(ctx, number)
}

// GetCurrentHeight fetches the active provider's current height.
func (s *LedgerService) GetCurrentHeight(ctx context.Context) (uint64, error) {
	return s.queries.GetCurrentHeight(ctx)
}

// GetBalance fetches the latest balance of an address in wei.
func (s *LedgerService) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	return s.queries.GetBalance(ctx, addr)
}

// GetTransactionCount fetches the latest nonce of an address.
func (s *LedgerService) GetTransactionCount(ctx context.Context, addr string) (uint64, error) {
	return s.queries.GetTransactionCount(ctx, addr)
}

// SubscribeBlocks registers a durable block subscription.
func (s *LedgerService) SubscribeBlocks(cb domain.BlockCallback) domain.SubHandle {
	return s.subs.SubscribeBlocks(cb)
}

// SubscribeAddress registers a durable watch on transactions touching addr.
func (s *LedgerService) SubscribeAddress(addr string, cb domain.AddressCallback) (domain.SubHandle, error) {
	return s.subs.SubscribeAddress(addr, cb)
}

// Unsubscribe removes a subscription by handle.
func (s *LedgerService) Unsubscribe(h domain.SubHandle) {
	s.subs.Unsubscribe(h)
}

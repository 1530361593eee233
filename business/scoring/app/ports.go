// Package app contains application services and port definitions for the scoring context.
package app

import (
	"context"
	"math/big"

	ledgerdomain "github.com/credscope/ledgerlink/business/ledger/domain"
)

// LedgerReader is the slice of the ledger boundary scoring reads through.
type LedgerReader interface {
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, addr string) (uint64, error)
	GetCurrentHeight(ctx context.Context) (uint64, error)
}

// ActivityFeed registers live watches on scored addresses so later scores
// reflect recent activity.
type ActivityFeed interface {
	SubscribeAddress(addr string, cb ledgerdomain.AddressCallback) (ledgerdomain.SubHandle, error)
	Unsubscribe(h ledgerdomain.SubHandle)
}

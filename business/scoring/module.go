// Package scoring implements the credit-scoring bounded context.
package scoring

import (
	"context"

	ledgerDI "github.com/credscope/ledgerlink/business/ledger/di"
	"github.com/credscope/ledgerlink/business/scoring/app"
	scoringDI "github.com/credscope/ledgerlink/business/scoring/di"
	"github.com/credscope/ledgerlink/internal/di"
	"github.com/credscope/ledgerlink/internal/logger"
	"github.com/credscope/ledgerlink/internal/monolith"
)

// Module implements the scoring bounded context.
type Module struct{}

// RegisterServices registers all scoring services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, scoringDI.ScoringService, func(sr di.ServiceRegistry) *app.ScoringService {
		log := sr.Get("logger").(logger.LoggerInterface)
		ledger := ledgerDI.GetLedgerService(sr)
		return app.NewScoringService(log, ledger, ledger)
	})
	return nil
}

// Startup initializes the scoring module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "scoring module started")
	return nil
}

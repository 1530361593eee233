// Package gateway implements the HTTP edge of the service.
package gateway

import (
	"context"

	gatewayDI "github.com/credscope/ledgerlink/business/gateway/di"
	"github.com/credscope/ledgerlink/business/gateway/rest"
	ledgerDI "github.com/credscope/ledgerlink/business/ledger/di"
	scoringDI "github.com/credscope/ledgerlink/business/scoring/di"
	"github.com/credscope/ledgerlink/internal/config"
	"github.com/credscope/ledgerlink/internal/di"
	"github.com/credscope/ledgerlink/internal/logger"
	"github.com/credscope/ledgerlink/internal/monolith"
)

// Module implements the gateway bounded context.
type Module struct{}

// RegisterServices registers the REST server with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, gatewayDI.Server, func(sr di.ServiceRegistry) *rest.Server {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return rest.NewServer(log, cfg.Gateway,
			ledgerDI.GetLedgerService(sr),
			scoringDI.GetScoringService(sr),
		)
	})
	return nil
}

// Startup serves in the background. Listener failures after startup are
// logged, not propagated; the process keeps its other modules running.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	server := gatewayDI.GetServer(mono.Services())

	go func() {
		if err := server.Start(); err != nil {
			log.Error(ctx, "gateway: server stopped", "error", err)
		}
	}()

	log.Info(ctx, "gateway module started")
	return nil
}

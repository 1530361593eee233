// Package ledger implements the ledger bounded context: the managed
// multi-provider RPC connection and everything behind it.
package ledger

import (
	"context"

	"github.com/credscope/ledgerlink/business/ledger/app"
	ledgerDI "github.com/credscope/ledgerlink/business/ledger/di"
	"github.com/credscope/ledgerlink/business/ledger/domain"
	"github.com/credscope/ledgerlink/business/ledger/infra/evm"
	"github.com/credscope/ledgerlink/internal/config"
	"github.com/credscope/ledgerlink/internal/di"
	"github.com/credscope/ledgerlink/internal/logger"
	"github.com/credscope/ledgerlink/internal/monolith"
)

// Module implements the ledger bounded context.
type Module struct{}

// RegisterServices registers all ledger services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, ledgerDI.Registry, func(sr di.ServiceRegistry) *evm.Registry {
		cfg := sr.Get("config").(*config.Config)

		registry := evm.NewRegistry()
		for _, p := range cfg.Ledger.Providers {
			err := registry.Register(domain.Provider{
				Name:      p.Name,
				RPCURL:    p.RPCURL,
				WSURL:     p.WSURL,
				APIKey:    p.APIKey,
				Priority:  p.Priority,
				RateLimit: p.RateLimit,
				Timeout:   p.Timeout,
			})
			if err != nil {
				panic("failed to register provider: " + err.Error())
			}
		}
		return registry
	})

	di.RegisterToken(c, ledgerDI.Prober, func(sr di.ServiceRegistry) *evm.Prober {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		prober, err := evm.NewProber(log, ledgerDI.GetRegistry(sr), cfg.Ledger.HealthCheckInterval)
		if err != nil {
			panic("failed to create prober: " + err.Error())
		}
		return prober
	})

	di.RegisterToken(c, ledgerDI.Mux, func(sr di.ServiceRegistry) *evm.Mux {
		log := sr.Get("logger").(logger.LoggerInterface)
		return evm.NewMux(log)
	})

	di.RegisterToken(c, ledgerDI.Supervisor, func(sr di.ServiceRegistry) *evm.Supervisor {
		log := sr.Get("logger").(logger.LoggerInterface)
		return evm.NewSupervisor(log,
			ledgerDI.GetRegistry(sr),
			ledgerDI.GetProber(sr),
			ledgerDI.GetMux(sr),
		)
	})

	di.RegisterToken(c, ledgerDI.Scheduler, func(sr di.ServiceRegistry) *evm.Scheduler {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return evm.NewScheduler(log,
			ledgerDI.GetSupervisor(sr),
			ledgerDI.GetProber(sr),
			evm.SchedulerConfig{
				BaseDelay:   cfg.Ledger.ReconnectBaseDelay,
				MaxDelay:    cfg.Ledger.ReconnectMaxDelay,
				MaxAttempts: cfg.Ledger.MaxReconnectAttempts,
			},
		)
	})

	di.RegisterToken(c, ledgerDI.Queries, func(sr di.ServiceRegistry) *evm.Queries {
		log := sr.Get("logger").(logger.LoggerInterface)
		return evm.NewQueries(log, ledgerDI.GetSupervisor(sr))
	})

	di.RegisterToken(c, ledgerDI.LedgerService, func(sr di.ServiceRegistry) *app.LedgerService {
		return app.NewLedgerService(
			ledgerDI.GetSupervisor(sr),
			ledgerDI.GetProber(sr),
			ledgerDI.GetRegistry(sr),
			ledgerDI.GetScheduler(sr),
			ledgerDI.GetMux(sr),
			ledgerDI.GetQueries(sr),
		)
	})

	return nil
}

// Startup wires the reconnect loop, starts the supervisor and periodic
// health checks, and attempts the initial connect. A failed initial connect
// is not fatal: the scheduler keeps trying.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	sup := ledgerDI.GetSupervisor(mono.Services())
	sched := ledgerDI.GetScheduler(mono.Services())
	prober := ledgerDI.GetProber(mono.Services())

	sup.OnDown(sched.NotifyDown)
	sup.OnUp(sched.Reset)
	sup.Start(ctx)
	sched.Start(ctx)
	go prober.RunPeriodic(ctx)

	if err := sup.Connect(ctx); err != nil {
		log.Error(ctx, "ledger: initial connect failed", "error", err)
		sched.NotifyDown(err)
	}

	log.Info(ctx, "ledger module started")
	return nil
}

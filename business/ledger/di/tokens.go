// Package di contains dependency injection tokens for the ledger context.
package di

import (
	"github.com/credscope/ledgerlink/business/ledger/app"
	"github.com/credscope/ledgerlink/business/ledger/infra/evm"
	"github.com/credscope/ledgerlink/internal/di"
)

// Public service tokens - exposed to other modules
var (
	LedgerService = di.NewToken[*app.LedgerService]("ledger.LedgerService")
)

// Private dependency tokens - internal to the ledger module
var (
	Registry   = di.NewToken[*evm.Registry]("ledger:registry")
	Prober     = di.NewToken[*evm.Prober]("ledger:prober")
	Mux        = di.NewToken[*evm.Mux]("ledger:mux")
	Supervisor = di.NewToken[*evm.Supervisor]("ledger:supervisor")
	Scheduler  = di.NewToken[*evm.Scheduler]("ledger:scheduler")
	Queries    = di.NewToken[*evm.Queries]("ledger:queries")
)

// Helper functions for type-safe access
func GetLedgerService(c di.ServiceRegistry) *app.LedgerService {
	return di.GetToken(c, LedgerService)
}

func GetRegistry(c di.ServiceRegistry) *evm.Registry {
	return di.GetToken(c, Registry)
}

func GetProber(c di.ServiceRegistry) *evm.Prober {
	return di.GetToken(c, Prober)
}

func GetMux(c di.ServiceRegistry) *evm.Mux {
	return di.GetToken(c, Mux)
}

func GetSupervisor(c di.ServiceRegistry) *evm.Supervisor {
	return di.GetToken(c, Supervisor)
}

func GetScheduler(c di.ServiceRegistry) *evm.Scheduler {
	return di.GetToken(c, Scheduler)
}

func GetQueries(c di.ServiceRegistry) *evm.Queries {
	return di.GetToken(c, Queries)
}

// Package di contains dependency injection tokens for the scoring context.
package di

import (
	"github.com/credscope/ledgerlink/business/scoring/app"
	"github.com/credscope/ledgerlink/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ScoringService = di.NewToken[*app.ScoringService]("scoring.ScoringService")
)

// Helper functions for type-safe access
func GetScoringService(c di.ServiceRegistry) *app.ScoringService {
	return di.GetToken(c, ScoringService)
}

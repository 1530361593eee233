// Package di contains dependency injection tokens for the gateway context.
package di

import (
	"github.com/credscope/ledgerlink/business/gateway/rest"
	"github.com/credscope/ledgerlink/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Server = di.NewToken[*rest.Server]("gateway.Server")
)

// Helper functions for type-safe access
func GetServer(c di.ServiceRegistry) *rest.Server {
	return di.GetToken(c, Server)
}

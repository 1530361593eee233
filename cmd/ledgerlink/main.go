// Package main is the entry point for the ledgerlink service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/credscope/ledgerlink/business/gateway"
	gatewayDI "github.com/credscope/ledgerlink/business/gateway/di"
	"github.com/credscope/ledgerlink/business/ledger"
	ledgerDI "github.com/credscope/ledgerlink/business/ledger/di"
	"github.com/credscope/ledgerlink/business/scoring"
	scoringDI "github.com/credscope/ledgerlink/business/scoring/di"
	"github.com/credscope/ledgerlink/internal/apm"
	"github.com/credscope/ledgerlink/internal/config"
	"github.com/credscope/ledgerlink/internal/health"
	"github.com/credscope/ledgerlink/internal/logger"
	"github.com/credscope/ledgerlink/internal/metrics"
	"github.com/credscope/ledgerlink/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownGrace = 10 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ledgerlink %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting ledgerlink",
		"version", version,
		"environment", cfg.App.Environment,
		"providers", len(cfg.Ledger.Providers),
	)

	// Observability is opt-in; the connection manager runs fine without it.
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		traceProvider = apm.NewTraceProvider(log,
			apm.WithProvider(apm.OTLPProvider, cfg.Telemetry.OTLPEndpoint, log),
			apm.WithServiceName(cfg.Telemetry.ServiceName),
		)
		log.Info(ctx, "tracing initialized", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}

	// Modules in dependency order: scoring reads through ledger, the
	// gateway serves both.
	modules := []monolith.Module{
		&ledger.Module{},
		&scoring.Module{},
		&gateway.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	healthServer := health.NewServer(cfg.App.HealthPort, version)
	healthServer.RegisterCheck("rpc_connection", func(ctx context.Context) (bool, string) {
		status := ledgerDI.GetLedgerService(mono.Services()).GetConnectionStatus(ctx)
		if !status.Connected {
			return false, "disconnected from all providers"
		}
		return true, fmt.Sprintf("connected via %s at height %d", status.ProviderName, status.LastHeight)
	})
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.App.HealthPort)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	log.Info(ctx, "all modules started")

	// Wait for shutdown
	<-ctx.Done()

	log.Info(ctx, "shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()

	if err := gatewayDI.GetServer(mono.Services()).Shutdown(stopCtx); err != nil {
		log.Error(stopCtx, "error stopping gateway", "error", err)
	}
	scoringDI.GetScoringService(mono.Services()).Close()
	if err := ledgerDI.GetLedgerService(mono.Services()).Disconnect(stopCtx); err != nil {
		log.Error(stopCtx, "error disconnecting", "error", err)
	}
	healthServer.Stop(stopCtx)

	return nil
}

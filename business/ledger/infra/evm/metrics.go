package evm

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

const meterName = "github.com/credscope/ledgerlink/business/ledger/infra/evm"

var meter = otel.Meter(meterName)

// Package-level instruments shared by the connection components. The global
// meter delegates once a provider is installed, so wiring order does not
// matter.
var (
	probeLatencyHist = mustHistogram("ledger_probe_latency_ms",
		"Provider liveness probe round trip", "ms")
	connectionStateGauge = mustGauge("ledger_connection_state",
		"Managed connection state (0=disconnected, 1=connecting, 2=connected)", "{state}")
	connectionsLostCounter = mustCounter("ledger_connections_lost_total",
		"Unsolicited connection losses", "{drop}")
	reconnectAttemptsCounter = mustCounter("ledger_reconnect_attempts_total",
		"Scheduled reconnect attempts fired", "{attempt}")
	headsDeliveredCounter = mustCounter("ledger_heads_delivered_total",
		"Block heads fanned out to subscribers", "{block}")
)

func mustCounter(name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		panic(err)
	}
	return c
}

func mustGauge(name, desc, unit string) metric.Int64Gauge {
	g, err := meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		panic(err)
	}
	return g
}

func mustHistogram(name, desc, unit string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		panic(err)
	}
	return h
}

func stateValue(state domain.ConnectionState) int64 {
	switch state {
	case domain.StateConnected:
		return 2
	case domain.StateConnecting:
		return 1
	default:
		return 0
	}
}

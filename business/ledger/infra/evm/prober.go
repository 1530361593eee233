package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/httpclient"
	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

const defaultProbeTimeout = 15 * time.Second

// probeRequest is the eth_blockNumber call issued against a provider's HTTP
// endpoint. The id is fixed; probes never pipeline.
var probeRequest = map[string]any{
	"jsonrpc": "2.0",
	"id":      1,
	"method":  "eth_blockNumber",
	"params":  []any{},
}

type probeEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Prober issues liveness probes against provider HTTP endpoints and folds
// the results into the registry.
type Prober struct {
	log      logger.LoggerInterface
	registry *Registry
	client   httpclient.Client
	interval time.Duration
}

// NewProber creates a prober sweeping the registry every interval.
func NewProber(log logger.LoggerInterface, registry *Registry, interval time.Duration) (*Prober, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("health-prober"),
		httpclient.WithRequestTimeout(defaultProbeTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating probe client: %w", err)
	}

	return &Prober{
		log:      log,
		registry: registry,
		client:   client,
		interval: interval,
	}, nil
}

// Probe issues a single eth_blockNumber read against the provider. Success
// means a well-formed hex height within the provider's timeout; anything
// else is a failure.
func (p *Prober) Probe(ctx context.Context, provider domain.Provider) domain.ProbeResult {
	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var envelope probeEnvelope
	resp, err := p.client.NewRequest().
		SetBody(probeRequest).
		SetResult(&envelope).
		Post(ctx, provider.RPCURL)
	latency := time.Since(start)

	res := domain.ProbeResult{Provider: provider.Name, Latency: latency}
	switch {
	case err != nil:
		res.Err = apperror.External(apperror.CodeProviderProbeFailed, provider.Name, err)
	case resp.IsError():
		res.Err = apperror.External(apperror.CodeProviderProbeFailed, provider.Name,
			fmt.Errorf("http status %d", resp.StatusCode))
	case envelope.Error != nil:
		res.Err = apperror.External(apperror.CodeProviderProbeFailed, provider.Name,
			fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message))
	default:
		var height hexutil.Uint64
		if err := json.Unmarshal(envelope.Result, &height); err != nil {
			res.Err = apperror.External(apperror.CodeProviderProbeFailed, provider.Name,
				fmt.Errorf("malformed height: %w", err))
		} else {
			res.Healthy = true
		}
	}

	probeLatencyHist.Record(ctx, float64(latency.Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider.Name),
		attribute.Bool("healthy", res.Healthy),
	))
	return res
}

// Sweep probes every registered provider concurrently, applies the results
// to the registry and logs a summary. A slow provider delays only its own
// verdict.
func (p *Prober) Sweep(ctx context.Context) []domain.ProbeResult {
	providers := p.registry.All()
	results := make([]domain.ProbeResult, len(providers))

	var wg sync.WaitGroup
	for i, provider := range providers {
		wg.Add(1)
		go func(i int, provider domain.Provider) {
			defer wg.Done()
			results[i] = p.Probe(ctx, provider)
		}(i, provider)
	}
	wg.Wait()

	healthy := 0
	for _, res := range results {
		if err := p.registry.Apply(res); err != nil {
			p.log.Warn(ctx, "health: apply probe result", "provider", res.Provider, "error", err)
			continue
		}
		if res.Healthy {
			healthy++
		} else {
			p.log.Debug(ctx, "health: probe failed", "provider", res.Provider, "error", res.Err)
		}
	}
	p.log.Info(ctx, "health: sweep complete", "healthy", healthy, "total", len(providers))
	return results
}

// CheckNow runs one out-of-band sweep, in addition to the periodic timer.
func (p *Prober) CheckNow(ctx context.Context) []domain.ProbeResult {
	return p.Sweep(ctx)
}

// RunPeriodic drives Sweep on a fixed interval until ctx ends.
func (p *Prober) RunPeriodic(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

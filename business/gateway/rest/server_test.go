package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ledgerdomain "github.com/credscope/ledgerlink/business/ledger/domain"
	scoringdomain "github.com/credscope/ledgerlink/business/scoring/domain"
	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/config"
	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

// stubLedger implements LedgerAPI with canned responses.
type stubLedger struct {
	mu sync.Mutex

	status    ledgerdomain.ConnectionStatus
	probes    []ledgerdomain.ProbeResult
	tx        ledgerdomain.Transaction
	txErr     error
	receipt   ledgerdomain.Receipt
	rcptErr   error
	block     ledgerdomain.Block
	blockErr  error
	height    uint64
	heightErr error
	balance   *big.Int

	nextHandle ledgerdomain.SubHandle
	blockCbs   map[ledgerdomain.SubHandle]ledgerdomain.BlockCallback
	addrCbs    map[ledgerdomain.SubHandle]ledgerdomain.AddressCallback
	addrErr    error
	unsubbed   []ledgerdomain.SubHandle
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		blockCbs: make(map[ledgerdomain.SubHandle]ledgerdomain.BlockCallback),
		addrCbs:  make(map[ledgerdomain.SubHandle]ledgerdomain.AddressCallback),
		balance:  big.NewInt(0),
	}
}

func (s *stubLedger) GetConnectionStatus(_ context.Context) ledgerdomain.ConnectionStatus {
	return s.status
}

func (s *stubLedger) PerformHealthCheck(_ context.Context) []ledgerdomain.ProbeResult {
	return s.probes
}

func (s *stubLedger) GetTransaction(_ context.Context, _ string) (ledgerdomain.Transaction, error) {
	return s.tx, s.txErr
}

func (s *stubLedger) GetTransactionReceipt(_ context.Context, _ string) (ledgerdomain.Receipt, error) {
	return s.receipt, s.rcptErr
}

func (s *stubLedger) GetBlockByNumber(_ context.Context, _ uint64) (ledgerdomain.Block, error) {
	return s.block, s.blockErr
}

func (s *stubLedger) GetCurrentHeight(_ context.Context) (uint64, error) {
	return s.height, s.heightErr
}

func (s *stubLedger) GetBalance(_ context.Context, _ string) (*big.Int, error) {
	return s.balance, nil
}

func (s *stubLedger) SubscribeBlocks(cb ledgerdomain.BlockCallback) ledgerdomain.SubHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	s.blockCbs[s.nextHandle] = cb
	return s.nextHandle
}

func (s *stubLedger) SubscribeAddress(addr string, cb ledgerdomain.AddressCallback) (ledgerdomain.SubHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrErr != nil {
		return 0, s.addrErr
	}
	s.nextHandle++
	s.addrCbs[s.nextHandle] = cb
	return s.nextHandle, nil
}

func (s *stubLedger) Unsubscribe(h ledgerdomain.SubHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blockCbs, h)
	delete(s.addrCbs, h)
	s.unsubbed = append(s.unsubbed, h)
}

func (s *stubLedger) pushBlock(b ledgerdomain.BlockSummary) {
	s.mu.Lock()
	cbs := make([]ledgerdomain.BlockCallback, 0, len(s.blockCbs))
	for _, cb := range s.blockCbs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(b)
	}
}

func (s *stubLedger) pushAddressEvent(ev ledgerdomain.AddressEvent) {
	s.mu.Lock()
	cbs := make([]ledgerdomain.AddressCallback, 0, len(s.addrCbs))
	for _, cb := range s.addrCbs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (s *stubLedger) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blockCbs) + len(s.addrCbs)
}

type stubScoring struct {
	score scoringdomain.CreditScore
	err   error
}

func (s *stubScoring) ScoreAddress(_ context.Context, _ string) (scoringdomain.CreditScore, error) {
	return s.score, s.err
}

func gatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		BindAddr:       ":0",
		RequestTimeout: 5 * time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

func newTestServer(t *testing.T, ledger *stubLedger, scoring *stubScoring) *httptest.Server {
	t.Helper()
	if scoring == nil {
		scoring = &stubScoring{}
	}
	srv := NewServer(testLogger(), gatewayConfig(), ledger, scoring)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error.Code
}

func TestStatusEndpoint(t *testing.T) {
	ledger := newStubLedger()
	ledger.status = ledgerdomain.ConnectionStatus{
		State:        ledgerdomain.StateConnected,
		Connected:    true,
		ProviderName: "alchemy",
		LastHeight:   1234,
	}
	ts := newTestServer(t, ledger, nil)

	resp, err := http.Get(ts.URL + "/api/v1/connection/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got ledgerdomain.ConnectionStatus
	decodeBody(t, resp, &got)
	if !got.Connected || got.ProviderName != "alchemy" || got.LastHeight != 1234 {
		t.Fatalf("unexpected status body: %+v", got)
	}
}

func TestHealthCheckEndpoint(t *testing.T) {
	ledger := newStubLedger()
	ledger.probes = []ledgerdomain.ProbeResult{
		{Provider: "alchemy", Healthy: true, Latency: 42 * time.Millisecond},
		{Provider: "infura", Healthy: false, Err: errors.New("connection refused")},
	}
	ts := newTestServer(t, ledger, nil)

	resp, err := http.Post(ts.URL+"/api/v1/connection/healthcheck", "application/json", nil)
	if err != nil {
		t.Fatalf("post healthcheck: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var entries []healthCheckEntry
	decodeBody(t, resp, &entries)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Provider != "alchemy" || !entries[0].Healthy || entries[0].LatencyMs != 42 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Healthy || entries[1].Error != "connection refused" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestHealthCheckRequiresPost(t *testing.T) {
	ts := newTestServer(t, newStubLedger(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/connection/healthcheck")
	if err != nil {
		t.Fatalf("get healthcheck: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "INVALID_INPUT" {
		t.Fatalf("error code = %q, want INVALID_INPUT", code)
	}
}

func TestTransactionEndpoint(t *testing.T) {
	ledger := newStubLedger()
	ledger.tx = ledgerdomain.Transaction{
		Hash:  common.HexToHash("0xaa01"),
		From:  "0x1111111111111111111111111111111111111111",
		Value: "0x3e8",
	}
	ts := newTestServer(t, ledger, nil)

	resp, err := http.Get(ts.URL + "/api/v1/tx/" + ledger.tx.Hash.Hex())
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got ledgerdomain.Transaction
	decodeBody(t, resp, &got)
	if got.From != ledger.tx.From || got.Value != "0x3e8" {
		t.Fatalf("unexpected tx body: %+v", got)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		prep       func(*stubLedger)
		path       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid hash",
			prep:       func(l *stubLedger) { l.txErr = apperror.Validation(apperror.CodeInvalidHash, "nope") },
			path:       "/api/v1/tx/nope",
			wantStatus: http.StatusBadRequest,
			wantCode:   string(apperror.CodeInvalidHash),
		},
		{
			name:       "tx not found",
			prep:       func(l *stubLedger) { l.txErr = apperror.NotFound(apperror.CodeNotFound, "0xdead") },
			path:       "/api/v1/tx/0xdead",
			wantStatus: http.StatusNotFound,
			wantCode:   string(apperror.CodeNotFound),
		},
		{
			name:       "receipt not connected",
			prep:       func(l *stubLedger) { l.rcptErr = apperror.External(apperror.CodeNotConnected, "rpc", nil) },
			path:       "/api/v1/tx/0xdead/receipt",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   string(apperror.CodeNotConnected),
		},
		{
			name:       "malformed block number",
			prep:       func(l *stubLedger) {},
			path:       "/api/v1/block/notanumber",
			wantStatus: http.StatusBadRequest,
			wantCode:   string(apperror.CodeInvalidInput),
		},
		{
			name:       "height with plain error",
			prep:       func(l *stubLedger) { l.heightErr = errors.New("boom") },
			path:       "/api/v1/height",
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(apperror.CodeUnknownError),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newStubLedger()
			tc.prep(ledger)
			ts := newTestServer(t, ledger, nil)

			resp, err := http.Get(ts.URL + tc.path)
			if err != nil {
				t.Fatalf("get %s: %v", tc.path, err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if code := errorCode(t, resp); code != tc.wantCode {
				t.Fatalf("error code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestBlockAndHeightEndpoints(t *testing.T) {
	ledger := newStubLedger()
	ledger.block = ledgerdomain.Block{Number: 77, Hash: common.HexToHash("0xbb")}
	ledger.height = 250
	ts := newTestServer(t, ledger, nil)

	resp, err := http.Get(ts.URL + "/api/v1/block/77")
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	var block ledgerdomain.Block
	decodeBody(t, resp, &block)
	if block.Number != 77 {
		t.Fatalf("block number = %d, want 77", block.Number)
	}

	resp, err = http.Get(ts.URL + "/api/v1/height")
	if err != nil {
		t.Fatalf("get height: %v", err)
	}
	var h heightResponse
	decodeBody(t, resp, &h)
	if h.Height != 250 {
		t.Fatalf("height = %d, want 250", h.Height)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	ledger := newStubLedger()
	ledger.balance = big.NewInt(1_500_000)
	ts := newTestServer(t, ledger, nil)

	addr := "0x2222222222222222222222222222222222222222"
	resp, err := http.Get(ts.URL + "/api/v1/balance/" + addr)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	var body balanceResponse
	decodeBody(t, resp, &body)
	if body.Address != addr || body.BalanceWei != "1500000" {
		t.Fatalf("unexpected balance body: %+v", body)
	}
}

func TestScoreEndpoint(t *testing.T) {
	scoring := &stubScoring{
		score: scoringdomain.CreditScore{
			Address: "0x3333333333333333333333333333333333333333",
			Score:   decimal.NewFromInt(565),
			Grade:   scoringdomain.GradeB,
		},
	}
	ts := newTestServer(t, newStubLedger(), scoring)

	resp, err := http.Get(ts.URL + "/api/v1/score/" + scoring.score.Address)
	if err != nil {
		t.Fatalf("get score: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got scoringdomain.CreditScore
	decodeBody(t, resp, &got)
	if got.Grade != scoringdomain.GradeB || !got.Score.Equal(decimal.NewFromInt(565)) {
		t.Fatalf("unexpected score body: %+v", got)
	}
}

func TestScoreEndpointInvalidAddress(t *testing.T) {
	scoring := &stubScoring{err: apperror.Validation(apperror.CodeInvalidAddress, "bogus")}
	ts := newTestServer(t, newStubLedger(), scoring)

	resp, err := http.Get(ts.URL + "/api/v1/score/bogus")
	if err != nil {
		t.Fatalf("get score: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != string(apperror.CodeInvalidAddress) {
		t.Fatalf("error code = %q", code)
	}
}

func TestRateLimiting(t *testing.T) {
	cfg := gatewayConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	srv := NewServer(testLogger(), cfg, newStubLedger(), &stubScoring{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/height")
		if err != nil {
			t.Fatalf("get height: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if code := errorCode(t, resp); code != string(apperror.CodeRateLimitExceeded) {
				t.Fatalf("error code = %q", code)
			}
			limited = true
			break
		}
		resp.Body.Close()
	}
	if !limited {
		t.Fatal("burst of 5 requests against burst limit 2 never hit 429")
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, newStubLedger(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSplitAddresses(t *testing.T) {
	got := splitAddresses(" 0xa , ,0xb,")
	if len(got) != 2 || got[0] != "0xa" || got[1] != "0xb" {
		t.Fatalf("splitAddresses = %v", got)
	}
	if splitAddresses("") != nil {
		t.Fatal("empty input should yield nil")
	}
	if !strings.HasPrefix(got[0], "0x") {
		t.Fatalf("unexpected element: %q", got[0])
	}
}

// Package rest exposes the service over HTTP: JSON endpoints for
// connection management, point reads and scoring, plus a websocket
// stream for live block and address events.
package rest

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	ledgerdomain "github.com/credscope/ledgerlink/business/ledger/domain"
	scoringdomain "github.com/credscope/ledgerlink/business/scoring/domain"
	"github.com/credscope/ledgerlink/internal/apm"
	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/config"
	"github.com/credscope/ledgerlink/internal/logger"
	"github.com/credscope/ledgerlink/internal/ratelimit"
)

// LedgerAPI is the slice of the ledger service the gateway consumes.
type LedgerAPI interface {
	GetConnectionStatus(ctx context.Context) ledgerdomain.ConnectionStatus
	PerformHealthCheck(ctx context.Context) []ledgerdomain.ProbeResult
	GetTransaction(ctx context.Context, hash string) (ledgerdomain.Transaction, error)
	GetTransactionReceipt(ctx context.Context, hash string) (ledgerdomain.Receipt, error)
	GetBlockByNumber(ctx context.Context, number uint64) (ledgerdomain.Block, error)
	GetCurrentHeight(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	SubscribeBlocks(cb ledgerdomain.BlockCallback) ledgerdomain.SubHandle
	SubscribeAddress(addr string, cb ledgerdomain.AddressCallback) (ledgerdomain.SubHandle, error)
	Unsubscribe(h ledgerdomain.SubHandle)
}

// ScoringAPI is the slice of the scoring service the gateway consumes.
type ScoringAPI interface {
	ScoreAddress(ctx context.Context, addr string) (scoringdomain.CreditScore, error)
}

// Server is the HTTP gateway.
type Server struct {
	log     logger.LoggerInterface
	ledger  LedgerAPI
	scoring ScoringAPI
	limiter *ratelimit.Limiter
	tracer  apm.Tracer
	timeout time.Duration
	srv     *http.Server
}

// NewServer builds the gateway around the given services.
func NewServer(log logger.LoggerInterface, cfg config.GatewayConfig, ledger LedgerAPI, scoring ScoringAPI) *Server {
	s := &Server{
		log:     log,
		ledger:  ledger,
		scoring: scoring,
		limiter: ratelimit.NewWithBurst(cfg.RateLimitRPS, cfg.RateLimitBurst),
		tracer:  apm.NewTracer("gateway"),
		timeout: cfg.RequestTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	s.srv = &http.Server{
		Handler: s.Router(),
		Addr:    cfg.BindAddr,
		// WriteTimeout stays unset so /api/v1/stream can hold its
		// connection; JSON routes get a per-request deadline instead.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.traceRequests, s.logRequests, s.rateLimit)
	// gorilla falls back to 404 for a known path with the wrong verb
	// unless told otherwise.
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		appErr := apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("method not allowed"),
			apperror.WithContext(req.Method+" "+req.URL.Path),
			apperror.WithStatusCode(http.StatusMethodNotAllowed),
		)
		writeJSON(w, appErr.StatusCode, appErr.ToResponse())
	})

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/connection/status", s.withDeadline(s.statusHandler)).Methods(http.MethodGet)
	api.HandleFunc("/connection/healthcheck", s.withDeadline(s.healthCheckHandler)).Methods(http.MethodPost)
	api.HandleFunc("/tx/{hash}", s.withDeadline(s.txHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tx/{hash}/receipt", s.withDeadline(s.receiptHandler)).Methods(http.MethodGet)
	api.HandleFunc("/block/{number}", s.withDeadline(s.blockHandler)).Methods(http.MethodGet)
	api.HandleFunc("/height", s.withDeadline(s.heightHandler)).Methods(http.MethodGet)
	api.HandleFunc("/balance/{address}", s.withDeadline(s.balanceHandler)).Methods(http.MethodGet)
	api.HandleFunc("/score/{address}", s.withDeadline(s.scoreHandler)).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.streamHandler).Methods(http.MethodGet)

	return r
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "gateway listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

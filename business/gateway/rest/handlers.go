package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/credscope/ledgerlink/internal/apperror"
)

// healthCheckEntry is the per-provider view returned by the healthcheck
// endpoint. ProbeResult carries a raw error which does not serialize; this
// flattens it to a string.
type healthCheckEntry struct {
	Provider  string `json:"provider"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type heightResponse struct {
	Height uint64 `json:"height"`
}

type balanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.GetConnectionStatus(r.Context()))
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	results := s.ledger.PerformHealthCheck(r.Context())
	entries := make([]healthCheckEntry, 0, len(results))
	for _, res := range results {
		e := healthCheckEntry{
			Provider:  res.Provider,
			Healthy:   res.Healthy,
			LatencyMs: res.Latency.Milliseconds(),
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) txHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.GetTransaction(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) receiptHandler(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.ledger.GetTransactionReceipt(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) blockHandler(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["number"]
	number, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeError(w, r, apperror.Validation(apperror.CodeInvalidInput, "block number: "+raw))
		return
	}
	block, err := s.ledger.GetBlockByNumber(r.Context(), number)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) heightHandler(w http.ResponseWriter, r *http.Request) {
	height, err := s.ledger.GetCurrentHeight(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, heightResponse{Height: height})
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	balance, err := s.ledger.GetBalance(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, BalanceWei: balance.String()})
}

func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	score, err := s.scoring.ScoreAddress(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json;charset=utf8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(apperror.CodeUnknownError, r.URL.Path, err)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "gateway: request failed", "path", r.URL.Path, "error", appErr.ToLog())
	}
	writeJSON(w, appErr.StatusCode, appErr.ToResponse())
}

package app

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/logger"

	ledgerdomain "github.com/credscope/ledgerlink/business/ledger/domain"
	"github.com/credscope/ledgerlink/business/scoring/domain"
)

// ScoringService derives credit scores from on-chain activity. Every scored
// address is also put on a live watch, so repeat scores pick up a recency
// bonus from transactions observed since the first request.
type ScoringService struct {
	log    logger.LoggerInterface
	reader LedgerReader
	feed   ActivityFeed

	mu       sync.Mutex
	lastSeen map[string]uint64
	watches  map[string]ledgerdomain.SubHandle
}

// NewScoringService creates a new ScoringService.
func NewScoringService(log logger.LoggerInterface, reader LedgerReader, feed ActivityFeed) *ScoringService {
	return &ScoringService{
		log:      log,
		reader:   reader,
		feed:     feed,
		lastSeen: make(map[string]uint64),
		watches:  make(map[string]ledgerdomain.SubHandle),
	}
}

// ScoreAddress computes the current credit score for an address. Ledger
// errors (not connected, circuit open) pass through unchanged so callers
// see the real condition.
func (s *ScoringService) ScoreAddress(ctx context.Context, addr string) (domain.CreditScore, error) {
	if !common.IsHexAddress(addr) {
		return domain.CreditScore{}, apperror.Validation(apperror.CodeInvalidAddress, addr)
	}
	key := strings.ToLower(common.HexToAddress(addr).Hex())

	s.watch(ctx, key)

	balance, err := s.reader.GetBalance(ctx, key)
	if err != nil {
		return domain.CreditScore{}, err
	}
	txCount, err := s.reader.GetTransactionCount(ctx, key)
	if err != nil {
		return domain.CreditScore{}, err
	}
	height, err := s.reader.GetCurrentHeight(ctx)
	if err != nil {
		return domain.CreditScore{}, err
	}

	s.mu.Lock()
	lastSeen := s.lastSeen[key]
	s.mu.Unlock()

	return domain.ComputeScore(domain.AddressActivity{
		Address:       key,
		TxCount:       txCount,
		BalanceWei:    balance,
		LastSeenBlock: lastSeen,
		CurrentHeight: height,
	}), nil
}

// watch registers a durable address watch once per address. Failure to
// watch only costs the recency component, so it is logged and absorbed.
func (s *ScoringService) watch(ctx context.Context, key string) {
	s.mu.Lock()
	_, watched := s.watches[key]
	s.mu.Unlock()
	if watched {
		return
	}

	h, err := s.feed.SubscribeAddress(key, s.observe)
	if err != nil {
		s.log.Warn(ctx, "scoring: watch failed", "address", key, "error", err)
		return
	}

	s.mu.Lock()
	s.watches[key] = h
	s.mu.Unlock()
}

func (s *ScoringService) observe(ev ledgerdomain.AddressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.BlockHeight > s.lastSeen[ev.Address] {
		s.lastSeen[ev.Address] = ev.BlockHeight
	}
}

// Close drops all live watches.
func (s *ScoringService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, h := range s.watches {
		s.feed.Unsubscribe(h)
		delete(s.watches, key)
	}
}

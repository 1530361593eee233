package app

import (
	"context"
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/logger"

	ledgerdomain "github.com/credscope/ledgerlink/business/ledger/domain"
	"github.com/credscope/ledgerlink/business/scoring/domain"
)

type stubReader struct {
	balance *big.Int
	nonce   uint64
	height  uint64
	err     error
}

func (s *stubReader) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	return s.balance, s.err
}
func (s *stubReader) GetTransactionCount(ctx context.Context, addr string) (uint64, error) {
	return s.nonce, s.err
}
func (s *stubReader) GetCurrentHeight(ctx context.Context) (uint64, error) {
	return s.height, s.err
}

type stubFeed struct {
	subs      map[string]ledgerdomain.AddressCallback
	next      ledgerdomain.SubHandle
	unsubbed  int
	subCalled int
}

func newStubFeed() *stubFeed {
	return &stubFeed{subs: make(map[string]ledgerdomain.AddressCallback)}
}

func (s *stubFeed) SubscribeAddress(addr string, cb ledgerdomain.AddressCallback) (ledgerdomain.SubHandle, error) {
	s.subCalled++
	s.next++
	s.subs[addr] = cb
	return s.next, nil
}

func (s *stubFeed) Unsubscribe(h ledgerdomain.SubHandle) { s.unsubbed++ }

const scoredAddr = "0xAAAA000000000000000000000000000000000001"

func newService(reader *stubReader, feed *stubFeed) *ScoringService {
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	return NewScoringService(log, reader, feed)
}

func TestScoreAddressRejectsMalformedAddress(t *testing.T) {
	svc := newService(&stubReader{}, newStubFeed())

	_, err := svc.ScoreAddress(context.Background(), "not-an-address")
	if !apperror.IsCode(err, apperror.CodeInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestScoreAddressPropagatesLedgerErrors(t *testing.T) {
	reader := &stubReader{err: apperror.New(apperror.CodeNotConnected)}
	svc := newService(reader, newStubFeed())

	_, err := svc.ScoreAddress(context.Background(), scoredAddr)
	if !apperror.IsCode(err, apperror.CodeNotConnected) {
		t.Fatalf("expected not connected passthrough, got %v", err)
	}
}

func TestScoreAddressComputesFromLedgerReads(t *testing.T) {
	reader := &stubReader{
		balance: new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		nonce:   25,
		height:  1000,
	}
	feed := newStubFeed()
	svc := newService(reader, feed)

	score, err := svc.ScoreAddress(context.Background(), scoredAddr)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// sqrt(25)*45 + tier(2 ETH) + no recency = 225 + 240
	if score.Score.String() != "465" {
		t.Fatalf("expected score 465, got %s", score.Score)
	}
	if score.Grade != domain.GradeC {
		t.Fatalf("expected grade C, got %s", score.Grade)
	}
	if score.Address != strings.ToLower(scoredAddr) {
		t.Fatalf("expected lowercased address, got %s", score.Address)
	}
}

func TestScoreAddressWatchesOnceAndUsesObservedActivity(t *testing.T) {
	reader := &stubReader{balance: big.NewInt(0), nonce: 0, height: 1000}
	feed := newStubFeed()
	svc := newService(reader, feed)

	if _, err := svc.ScoreAddress(context.Background(), scoredAddr); err != nil {
		t.Fatalf("first score: %v", err)
	}

	// Simulate a live transaction observed through the watch.
	key := strings.ToLower(scoredAddr)
	feed.subs[key](ledgerdomain.AddressEvent{Address: key, BlockHeight: 950})

	score, err := svc.ScoreAddress(context.Background(), scoredAddr)
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	// 50 blocks ago earns the full recency bonus.
	if score.Components.Recency.String() != "150" {
		t.Fatalf("expected recency 150 after observed tx, got %s", score.Components.Recency)
	}
	if feed.subCalled != 1 {
		t.Fatalf("expected a single watch registration, got %d", feed.subCalled)
	}
}

func TestCloseDropsWatches(t *testing.T) {
	feed := newStubFeed()
	svc := newService(&stubReader{balance: big.NewInt(0), height: 1}, feed)

	if _, err := svc.ScoreAddress(context.Background(), scoredAddr); err != nil {
		t.Fatalf("score: %v", err)
	}
	svc.Close()
	if feed.unsubbed != 1 {
		t.Fatalf("expected 1 unsubscribe on close, got %d", feed.unsubbed)
	}
}

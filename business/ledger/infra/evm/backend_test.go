package evm

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

// mockChain is the scripted state behind one mock provider.
type mockChain struct {
	mu       sync.Mutex
	height   uint64
	blocks   map[uint64]*rpcBlock
	txs      map[common.Hash]*rpcTransaction
	receipts map[common.Hash]*rpcReceipt
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	failRPC  bool

	subs []headSub
}

type headSub struct {
	notifier *rpc.Notifier
	sub      *rpc.Subscription
}

func newMockChain() *mockChain {
	return &mockChain{
		height:   100,
		blocks:   make(map[uint64]*rpcBlock),
		txs:      make(map[common.Hash]*rpcTransaction),
		receipts: make(map[common.Hash]*rpcReceipt),
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
	}
}

func (c *mockChain) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRPC = fail
}

func (c *mockChain) addBlock(b *rpcBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[uint64(b.Number)] = b
	if uint64(b.Number) > c.height {
		c.height = uint64(b.Number)
	}
	for i := range b.Transactions {
		tx := b.Transactions[i]
		c.txs[tx.Hash] = &tx
	}
}

func (c *mockChain) addReceipt(r *rpcReceipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[r.TransactionHash] = r
}

// pushHead notifies every live newHeads subscriber.
func (c *mockChain) pushHead(b *rpcBlock) {
	c.addBlock(b)
	head := &blockHead{
		Number:     (*hexutil.Big)(new(big.Int).SetUint64(uint64(b.Number))),
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  b.Timestamp,
	}

	c.mu.Lock()
	subs := make([]headSub, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.notifier.Notify(s.sub.ID, head); err != nil {
			c.dropSub(s)
		}
	}
}

func (c *mockChain) dropSub(dead headSub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subs[:0]
	for _, s := range c.subs {
		if s.sub.ID != dead.sub.ID {
			kept = append(kept, s)
		}
	}
	c.subs = kept
}

// ethService is registered under the "eth" namespace on the mock server.
type ethService struct {
	chain *mockChain
}

func (s *ethService) BlockNumber() (hexutil.Uint64, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return 0, errors.New("backend down")
	}
	return hexutil.Uint64(s.chain.height), nil
}

func (s *ethService) GetBlockByNumber(num rpc.BlockNumber, full bool) (*rpcBlock, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return nil, errors.New("backend down")
	}
	return s.chain.blocks[uint64(num)], nil
}

func (s *ethService) GetTransactionByHash(hash common.Hash) (*rpcTransaction, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return nil, errors.New("backend down")
	}
	return s.chain.txs[hash], nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*rpcReceipt, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return nil, errors.New("backend down")
	}
	return s.chain.receipts[hash], nil
}

func (s *ethService) GetBalance(addr common.Address, num rpc.BlockNumber) (hexutil.Big, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return hexutil.Big{}, errors.New("backend down")
	}
	if bal, ok := s.chain.balances[addr]; ok {
		return hexutil.Big(*bal), nil
	}
	return hexutil.Big{}, nil
}

func (s *ethService) GetTransactionCount(addr common.Address, num rpc.BlockNumber) (hexutil.Uint64, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.failRPC {
		return 0, errors.New("backend down")
	}
	return hexutil.Uint64(s.chain.nonces[addr]), nil
}

func (s *ethService) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()
	s.chain.mu.Lock()
	s.chain.subs = append(s.chain.subs, headSub{notifier: notifier, sub: sub})
	s.chain.mu.Unlock()
	return sub, nil
}

// connTracker records every connection its listener accepts so tests can
// sever them at the TCP level. httptest's CloseClientConnections does not
// reach connections the handler has hijacked, which is exactly what a
// websocket upgrade does.
type connTracker struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *connTracker) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.conns = append(l.conns, conn)
	l.mu.Unlock()
	return conn, nil
}

func (l *connTracker) closeAll() {
	l.mu.Lock()
	conns := l.conns
	l.conns = nil
	l.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// testBackend is one mock provider: a scripted chain served over real HTTP
// and websocket JSON-RPC.
type testBackend struct {
	chain   *mockChain
	srv     *rpc.Server
	http    *httptest.Server
	ws      *httptest.Server
	wsConns *connTracker
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	chain := newMockChain()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &ethService{chain: chain}); err != nil {
		t.Fatalf("registering eth service: %v", err)
	}

	ws := httptest.NewUnstartedServer(srv.WebsocketHandler([]string{"*"}))
	tracker := &connTracker{Listener: ws.Listener}
	ws.Listener = tracker
	ws.Start()

	b := &testBackend{
		chain:   chain,
		srv:     srv,
		http:    httptest.NewServer(srv),
		ws:      ws,
		wsConns: tracker,
	}
	t.Cleanup(func() {
		b.http.Close()
		b.ws.Close()
		srv.Stop()
	})
	return b
}

// dropWS kills every established websocket connection, simulating an
// unsolicited drop by the provider. The listener keeps accepting, so the
// backend is immediately reachable for a reconnect.
func (b *testBackend) dropWS() {
	b.wsConns.closeAll()
}

func (b *testBackend) provider(name string, priority int) domain.Provider {
	return domain.Provider{
		Name:     name,
		RPCURL:   b.http.URL,
		WSURL:    "ws" + strings.TrimPrefix(b.ws.URL, "http"),
		Priority: priority,
		Timeout:  2 * time.Second,
	}
}

// deadProvider points at nothing listening.
func deadProvider(name string, priority int) domain.Provider {
	return domain.Provider{
		Name:     name,
		RPCURL:   "http://127.0.0.1:1",
		WSURL:    "ws://127.0.0.1:1",
		Priority: priority,
		Timeout:  500 * time.Millisecond,
	}
}

func makeBlock(number uint64, txs ...rpcTransaction) *rpcBlock {
	return &rpcBlock{
		Number:       hexutil.Uint64(number),
		Hash:         common.BytesToHash([]byte{byte(number >> 8), byte(number)}),
		ParentHash:   common.BytesToHash([]byte{byte((number - 1) >> 8), byte(number - 1)}),
		Timestamp:    hexutil.Uint64(1700000000 + number),
		Transactions: txs,
	}
}

func makeTx(seed byte, from, to string) rpcTransaction {
	var toAddr *common.Address
	if to != "" {
		a := common.HexToAddress(to)
		toAddr = &a
	}
	return rpcTransaction{
		Hash:  common.BytesToHash([]byte{0xaa, seed}),
		From:  common.HexToAddress(from),
		To:    toAddr,
		Value: (*hexutil.Big)(new(big.Int).SetUint64(uint64(seed) * 1000)),
		Nonce: hexutil.Uint64(seed),
	}
}

func newTestProber(t *testing.T, registry *Registry) *Prober {
	t.Helper()
	prober, err := NewProber(testLogger(), registry, time.Minute)
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}
	return prober
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

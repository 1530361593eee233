package evm

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

const blockFetchTimeout = 15 * time.Second

// Mux fans new-head events out to registered callbacks. Registrations are
// durable across reconnects: the supervisor re-arms the mux with each new
// connection and subscribers notice nothing.
//
// Address matching uses the block-scan strategy: one full-block fetch per
// head, then every transaction's from and to are checked against the watch
// set independently.
type Mux struct {
	log      logger.LoggerInterface
	onHeight func(uint64)
	heads    atomic.Uint64

	mu           sync.Mutex
	nextHandle   domain.SubHandle
	blockSubs    map[domain.SubHandle]domain.BlockCallback
	addrSubs     map[string]map[domain.SubHandle]domain.AddressCallback
	addrByHandle map[domain.SubHandle]string
	stop         chan struct{}
}

func NewMux(log logger.LoggerInterface) *Mux {
	return &Mux{
		log:          log,
		blockSubs:    make(map[domain.SubHandle]domain.BlockCallback),
		addrSubs:     make(map[string]map[domain.SubHandle]domain.AddressCallback),
		addrByHandle: make(map[domain.SubHandle]string),
	}
}

// OnHeight registers an observer called with every head's height before
// fan-out. Set once at wiring time.
func (m *Mux) OnHeight(fn func(uint64)) { m.onHeight = fn }

// HeadsDelivered returns the lifetime count of heads fanned out.
func (m *Mux) HeadsDelivered() uint64 { return m.heads.Load() }

// SubscribeBlocks registers a callback for every new block. Effective
// immediately if armed, otherwise from the next successful connect.
func (m *Mux) SubscribeBlocks(cb domain.BlockCallback) domain.SubHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHandle++
	h := m.nextHandle
	m.blockSubs[h] = cb
	return h
}

// SubscribeAddress registers a callback for transactions touching addr,
// case-insensitive. Fails with CodeInvalidAddress on a malformed address.
func (m *Mux) SubscribeAddress(addr string, cb domain.AddressCallback) (domain.SubHandle, error) {
	if !common.IsHexAddress(addr) {
		return 0, apperror.Validation(apperror.CodeInvalidAddress, addr)
	}
	key := strings.ToLower(common.HexToAddress(addr).Hex())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHandle++
	h := m.nextHandle
	set, ok := m.addrSubs[key]
	if !ok {
		set = make(map[domain.SubHandle]domain.AddressCallback)
		m.addrSubs[key] = set
	}
	set[h] = cb
	m.addrByHandle[h] = key
	return h, nil
}

// Unsubscribe removes a subscription. Unknown handles are a no-op. Removing
// the last callback for an address drops the address from the watch set.
func (m *Mux) Unsubscribe(h domain.SubHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blockSubs[h]; ok {
		delete(m.blockSubs, h)
		return
	}
	key, ok := m.addrByHandle[h]
	if !ok {
		return
	}
	delete(m.addrByHandle, h)
	if set, ok := m.addrSubs[key]; ok {
		delete(set, h)
		if len(set) == 0 {
			delete(m.addrSubs, key)
		}
	}
}

// Rearm points the mux at a new connection, replacing any previous pump.
// Called by the supervisor on every successful connect.
func (m *Mux) Rearm(conn *Conn) {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go m.pump(conn, stop)
}

// Disarm stops delivery until the next Rearm. Registrations survive.
func (m *Mux) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Mux) pump(conn *Conn, stop chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case head, ok := <-conn.heads:
			if !ok {
				return
			}
			m.handleHead(ctx, conn, head)
		}
	}
}

// handleHead delivers one head: block fan-out first, then the address scan.
// Callback snapshots are taken per head so late registrations pick up from
// the next block.
func (m *Mux) handleHead(ctx context.Context, conn *Conn, head *blockHead) {
	if m.onHeight != nil {
		m.onHeight(head.Height())
	}

	m.mu.Lock()
	blockCbs := make([]domain.BlockCallback, 0, len(m.blockSubs))
	for _, cb := range m.blockSubs {
		blockCbs = append(blockCbs, cb)
	}
	watched := len(m.addrSubs) > 0
	m.mu.Unlock()

	summary := head.Summary()
	m.heads.Add(1)
	headsDeliveredCounter.Add(ctx, 1)
	for _, cb := range blockCbs {
		m.invokeBlock(ctx, cb, summary)
	}

	if !watched {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, blockFetchTimeout)
	defer cancel()

	var blk *rpcBlock
	err := conn.client.CallContext(fetchCtx, &blk, "eth_getBlockByNumber",
		hexutil.EncodeUint64(head.Height()), true)
	if err != nil || blk == nil {
		m.log.Warn(ctx, "mux: block fetch failed", "height", head.Height(), "error", err)
		return
	}

	for i := range blk.Transactions {
		tx := blk.Transactions[i].toDomain()
		m.deliverAddress(ctx, tx.From, domain.DirectionFrom, tx, uint64(blk.Number))
		if tx.To != "" {
			m.deliverAddress(ctx, tx.To, domain.DirectionTo, tx, uint64(blk.Number))
		}
	}
}

func (m *Mux) deliverAddress(ctx context.Context, addr string, dir domain.Direction, tx domain.Transaction, height uint64) {
	m.mu.Lock()
	set := m.addrSubs[addr]
	cbs := make([]domain.AddressCallback, 0, len(set))
	for _, cb := range set {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	if len(cbs) == 0 {
		return
	}
	ev := domain.AddressEvent{Address: addr, Direction: dir, Tx: tx, BlockHeight: height}
	for _, cb := range cbs {
		m.invokeAddress(ctx, cb, ev)
	}
}

// Callback failures are isolated: a panicking subscriber is logged and the
// rest of the fan-out proceeds.
func (m *Mux) invokeBlock(ctx context.Context, cb domain.BlockCallback, summary domain.BlockSummary) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(ctx, "mux: block callback panic", "height", summary.Height, "panic", r)
		}
	}()
	cb(summary)
}

func (m *Mux) invokeAddress(ctx context.Context, cb domain.AddressCallback, ev domain.AddressEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(ctx, "mux: address callback panic", "address", ev.Address, "panic", r)
		}
	}()
	cb(ev)
}

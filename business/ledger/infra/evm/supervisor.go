package evm

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

const (
	defaultDialTimeout = 15 * time.Second
	headBuffer         = 16
)

// Conn is the live connection to one provider: the websocket RPC client and
// its newHeads subscription. Owned exclusively by the Supervisor; the
// multiplexer and query facade borrow it through accessors.
type Conn struct {
	provider domain.Provider
	client   *rpc.Client
	sub      *rpc.ClientSubscription
	heads    chan *blockHead
}

// Client returns the underlying RPC client.
func (c *Conn) Client() *rpc.Client { return c.client }

func (c *Conn) close() {
	c.sub.Unsubscribe()
	c.client.Close()
}

// supervisorEvent is the closed set of messages the event loop consumes.
type supervisorEvent interface{ supervisorEvent() }

type connectRequest struct{ reply chan error }
type disconnectRequest struct{ reply chan struct{} }

func (connectRequest) supervisorEvent()    {}
func (disconnectRequest) supervisorEvent() {}

// Supervisor owns the single active provider connection. All lifecycle
// transitions happen on one event-loop goroutine; concurrent Connect and
// Disconnect calls serialize through the event channel so reconnect attempts
// cannot race.
type Supervisor struct {
	log         logger.LoggerInterface
	registry    *Registry
	prober      *Prober
	mux         *Mux
	dialTimeout time.Duration

	events chan supervisorEvent

	mu          sync.Mutex
	onDown      func(error)
	onUp        func()
	state       domain.ConnectionState
	conn        *Conn
	connectedAt time.Time
	lastHeight  uint64
	linksLost   uint64
}

// NewSupervisor wires the supervisor against the registry, prober and
// multiplexer. Call OnDown/OnUp before Start.
func NewSupervisor(log logger.LoggerInterface, registry *Registry, prober *Prober, mux *Mux) *Supervisor {
	s := &Supervisor{
		log:         log,
		registry:    registry,
		prober:      prober,
		mux:         mux,
		dialTimeout: defaultDialTimeout,
		events:      make(chan supervisorEvent),
		state:       domain.StateDisconnected,
	}
	mux.OnHeight(s.observeHeight)
	return s
}

// OnDown registers the callback invoked after an unsolicited connection loss
// has been absorbed (provider marked unhealthy, state Disconnected). The
// supervisor never retries in-line; retry policy lives with the caller.
func (s *Supervisor) OnDown(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDown = fn
}

// OnUp registers the callback invoked after every successful connect.
func (s *Supervisor) OnUp(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUp = fn
}

func (s *Supervisor) downFn() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onDown
}

func (s *Supervisor) upFn() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onUp
}

// Start launches the event loop. It returns immediately; the loop runs until
// ctx ends, closing any active connection on the way out.
func (s *Supervisor) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	for {
		var subErr <-chan error
		if c := s.current(); c != nil {
			subErr = c.sub.Err()
		}

		select {
		case <-ctx.Done():
			s.teardown(ctx)
			return
		case ev := <-s.events:
			switch ev := ev.(type) {
			case connectRequest:
				ev.reply <- s.connect(ctx)
			case disconnectRequest:
				s.teardown(ctx)
				close(ev.reply)
			}
		case err := <-subErr:
			s.handleLinkDown(ctx, err)
		}
	}
}

// Connect asks the event loop to establish a connection. It is a no-op when
// already connected. Candidates come from the registry's healthy set in
// priority order; the first provider passing both the HTTP read and the
// websocket subscribe wins, every failed candidate is marked unhealthy.
func (s *Supervisor) Connect(ctx context.Context) error {
	req := connectRequest{reply: make(chan error, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the active connection if any. Idempotent.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	req := disconnectRequest{reply: make(chan struct{})}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client returns the active RPC client, or CodeNotConnected.
func (s *Supervisor) Client() (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateConnected || s.conn == nil {
		return nil, apperror.New(apperror.CodeNotConnected)
	}
	return s.conn.client, nil
}

// Status returns a consistent snapshot of the connection record. It never
// touches the network.
func (s *Supervisor) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.ConnectionStatus{
		State:      s.state,
		Connected:  s.state == domain.StateConnected,
		LastHeight: s.lastHeight,
	}
	st.AggregateStats.ConnectionsLost = s.linksLost
	if s.conn != nil {
		st.ProviderName = s.conn.provider.Name
		st.ConnectedAt = s.connectedAt
	}
	return st
}

// connect runs on the event loop.
func (s *Supervisor) connect(ctx context.Context) error {
	if s.current() != nil {
		return nil
	}
	s.setState(domain.StateConnecting)

	candidates := s.registry.HealthyInPriorityOrder()
	if len(candidates) == 0 {
		s.setState(domain.StateDisconnected)
		return apperror.New(apperror.CodeNoHealthyProvider)
	}

	for _, p := range candidates {
		conn, height, err := s.dial(ctx, p)
		if err != nil {
			s.log.Warn(ctx, "supervisor: candidate failed", "provider", p.Name, "error", err)
			if markErr := s.registry.MarkUnhealthy(p.Name); markErr != nil {
				s.log.Warn(ctx, "supervisor: mark unhealthy", "provider", p.Name, "error", markErr)
			}
			continue
		}

		s.adopt(conn, height)
		s.mux.Rearm(conn)
		s.log.Info(ctx, "supervisor: connected", "provider", p.Name, "height", height)
		if fn := s.upFn(); fn != nil {
			fn()
		}
		return nil
	}

	s.setState(domain.StateDisconnected)
	return apperror.New(apperror.CodeAllProvidersFailed)
}

// dial checks the request endpoint with one lightweight read, then opens the
// event-stream endpoint and subscribes to new heads. Both must succeed.
func (s *Supervisor) dial(ctx context.Context, p domain.Provider) (*Conn, uint64, error) {
	if res := s.prober.Probe(ctx, p); !res.Healthy {
		return nil, 0, res.Err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	client, err := rpc.DialContext(dialCtx, p.WSURL)
	if err != nil {
		return nil, 0, apperror.External(apperror.CodeSubscribeFailed, p.Name, err)
	}

	heads := make(chan *blockHead, headBuffer)
	sub, err := client.EthSubscribe(dialCtx, heads, "newHeads")
	if err != nil {
		client.Close()
		return nil, 0, apperror.External(apperror.CodeSubscribeFailed, p.Name, err)
	}

	var height hexutil.Uint64
	if err := client.CallContext(dialCtx, &height, "eth_blockNumber"); err != nil {
		sub.Unsubscribe()
		client.Close()
		return nil, 0, apperror.External(apperror.CodeSubscribeFailed, p.Name, err)
	}

	return &Conn{provider: p, client: client, sub: sub, heads: heads}, uint64(height), nil
}

// handleLinkDown absorbs an unsolicited subscription error: mark the active
// provider unhealthy, drop to Disconnected and hand off to onDown.
func (s *Supervisor) handleLinkDown(ctx context.Context, cause error) {
	c := s.current()
	if c == nil {
		return
	}
	s.log.Warn(ctx, "supervisor: connection lost", "provider", c.provider.Name, "error", cause)
	connectionsLostCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", c.provider.Name),
	))
	s.mu.Lock()
	s.linksLost++
	s.mu.Unlock()

	if err := s.registry.MarkUnhealthy(c.provider.Name); err != nil {
		s.log.Warn(ctx, "supervisor: mark unhealthy", "provider", c.provider.Name, "error", err)
	}
	s.mux.Disarm()
	c.close()
	s.clear()

	if fn := s.downFn(); fn != nil {
		fn(cause)
	}
}

// teardown is the deliberate disconnect path. No health penalty, no onDown.
func (s *Supervisor) teardown(ctx context.Context) {
	c := s.current()
	if c == nil {
		s.setState(domain.StateDisconnected)
		return
	}
	s.log.Info(ctx, "supervisor: disconnecting", "provider", c.provider.Name)
	s.mux.Disarm()
	c.close()
	s.clear()
}

func (s *Supervisor) current() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Supervisor) setState(state domain.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	connectionStateGauge.Record(context.Background(), stateValue(state))
}

func (s *Supervisor) adopt(conn *Conn, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.state = domain.StateConnected
	s.connectedAt = time.Now().UTC()
	s.lastHeight = height
	connectionStateGauge.Record(context.Background(), stateValue(s.state))
}

func (s *Supervisor) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.state = domain.StateDisconnected
	s.connectedAt = time.Time{}
	connectionStateGauge.Record(context.Background(), stateValue(s.state))
}

func (s *Supervisor) observeHeight(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height > s.lastHeight {
		s.lastHeight = height
	}
}

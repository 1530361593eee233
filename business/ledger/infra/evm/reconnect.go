package evm

import (
	"context"
	"sync"
	"time"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/logger"
)

const (
	defaultReconnectBase     = 5 * time.Second
	defaultReconnectMax      = 300 * time.Second
	defaultReconnectAttempts = 5
)

// SchedulerConfig carries the backoff policy. Zero values take the defaults.
type SchedulerConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Scheduler owns reconnect retry policy: exponential backoff with a delay
// cap and an attempt cap. At most one timer is outstanding at any time;
// down notifications while a retry is pending are no-ops. Reaching the
// attempt cap is terminal until the process restarts.
type Scheduler struct {
	log         logger.LoggerInterface
	sup         *Supervisor
	prober      *Prober
	base        time.Duration
	max         time.Duration
	maxAttempts int

	ctx context.Context

	mu         sync.Mutex
	attempts   int
	totalFired uint64
	pending    bool
	terminal   bool
	timer      *time.Timer
}

func NewScheduler(log logger.LoggerInterface, sup *Supervisor, prober *Prober, cfg SchedulerConfig) *Scheduler {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultReconnectBase
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultReconnectMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultReconnectAttempts
	}
	return &Scheduler{
		log:         log,
		sup:         sup,
		prober:      prober,
		base:        cfg.BaseDelay,
		max:         cfg.MaxDelay,
		maxAttempts: cfg.MaxAttempts,
		ctx:         context.Background(),
	}
}

// Start binds the scheduler to its lifetime context.
func (r *Scheduler) Start(ctx context.Context) {
	r.ctx = ctx
}

// Stop cancels any pending retry timer.
func (r *Scheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = false
}

// NotifyDown schedules a reconnect attempt. No-op while a retry is already
// pending or after the attempt cap has been reached.
func (r *Scheduler) NotifyDown(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending || r.terminal {
		return
	}
	r.scheduleLocked(cause)
}

// Reset clears the attempt counter after a successful connect.
func (r *Scheduler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
}

// Attempts returns the current consecutive failed-attempt count.
func (r *Scheduler) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Terminal reports whether the attempt cap has been reached.
func (r *Scheduler) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// TotalFired returns the lifetime count of scheduled reconnect attempts.
// Unlike Attempts it is never reset on a successful connect.
func (r *Scheduler) TotalFired() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalFired
}

func (r *Scheduler) scheduleLocked(cause error) {
	if r.attempts >= r.maxAttempts {
		r.terminal = true
		err := apperror.New(apperror.CodeMaxReconnectAttempts,
			apperror.WithCause(cause))
		r.log.Error(r.ctx, "reconnect: attempt cap reached, giving up",
			"attempts", r.attempts, "error", err)
		return
	}

	// The attempt counts from the moment it is scheduled, so status reads
	// taken during the backoff window see the retry in flight.
	delay := backoffDelay(r.base, r.max, r.attempts)
	r.attempts++
	r.totalFired++
	r.pending = true
	r.timer = time.AfterFunc(delay, r.fire)
	r.log.Info(r.ctx, "reconnect: scheduled",
		"attempt", r.attempts, "delay", delay, "cause", cause)
}

func (r *Scheduler) fire() {
	r.mu.Lock()
	r.pending = false
	r.timer = nil
	ctx := r.ctx
	r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	reconnectAttemptsCounter.Add(ctx, 1)

	// A dropped provider was just marked unhealthy; refresh health before
	// selecting so a recovered endpoint is eligible again.
	r.prober.Sweep(ctx)

	err := r.sup.Connect(ctx)
	if err == nil {
		return
	}
	r.log.Warn(ctx, "reconnect: attempt failed", "error", err)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending || r.terminal {
		return
	}
	r.scheduleLocked(err)
}

// backoffDelay is min(base << attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt >= 32 {
		return max
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Package ratelimit wraps golang.org/x/time/rate in the two shapes this
// service needs: a per-minute budget for outbound calls and a
// rate-plus-burst limiter for the HTTP gateway.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket rate limiter.
type Limiter struct {
	bucket *rate.Limiter
}

// New builds a limiter from a per-minute budget. Burst is a tenth of the
// budget with a floor of one.
func New(requestsPerMinute int) *Limiter {
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// NewWithBurst builds a limiter from an explicit per-second rate and burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow reports whether one event may proceed now without waiting.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

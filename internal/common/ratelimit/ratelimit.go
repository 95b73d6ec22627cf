// Package ratelimit throttles outbound POP3 commands to a configured
// rate, so a bulk fetchmail run does not hammer a server that enforces
// its own connection-rate policy.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with an explicit
// disabled state for rps <= 0, rather than relying on rate.Inf, so
// callers can ask Enabled() instead of comparing floats.
type Limiter struct {
	rps     float64
	limiter *rate.Limiter
}

// New builds a Limiter allowing rps requests per second. rps <= 0
// disables limiting entirely: Wait returns immediately and Allow
// always reports true.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{rps: 0}
	}
	return &Limiter{
		rps:     rps,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Enabled reports whether this limiter actually throttles.
func (l *Limiter) Enabled() bool {
	return l.limiter != nil
}

// RPS returns the configured rate, or 0 if disabled.
func (l *Limiter) RPS() float64 {
	return l.rps
}

// Wait blocks until a token is available or ctx is done. A disabled
// limiter returns immediately with a nil error.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now, consuming a
// token if so. A disabled limiter always returns true.
func (l *Limiter) Allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// Reserve reserves a token for a future request, returning the
// *rate.Reservation the caller can inspect for its delay. A disabled
// limiter returns nil, signaling an unlimited rate.
func (l *Limiter) Reserve() *rate.Reservation {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Reserve()
}

// String describes the limiter's configured rate for logging.
func (l *Limiter) String() string {
	if l.limiter == nil {
		return "rate limit: disabled"
	}
	if l.rps < 1 {
		return fmt.Sprintf("rate limit: 1 request per %.2fs", 1/l.rps)
	}
	return fmt.Sprintf("rate limit: %.2f rps", l.rps)
}

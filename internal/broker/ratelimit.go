package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles outgoing REST calls to a vendor gateway: the periodic
// reconciler's SyncTrade sweep and the grading backfill's GetBars calls.
// No concrete vendor is pinned here, so this is a plain token bucket rather
// than one keyed off a vendor's weight-reporting header; the concern is the
// same either way — don't hammer the broker REST API.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter builds a Limiter allowing ratePerSecond steady-state calls
// with a burst of burst, e.g. NewLimiter(10, 20) for a typical vendor REST
// budget.
func NewLimiter(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a call is permitted or ctx is done.
func (rl *Limiter) Wait(ctx context.Context) error {
	return rl.l.Wait(ctx)
}

// Allow reports, without blocking, whether a call may proceed right now.
func (rl *Limiter) Allow() bool {
	return rl.l.Allow()
}

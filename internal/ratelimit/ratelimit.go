// Package ratelimit paces outbound GitHub requests. A local token bucket
// smooths bursts; the server budget reported in X-RateLimit-* and
// Retry-After headers stops traffic until the window resets once it runs
// out.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter combines a token bucket with GitHub's server-side budget.
type Limiter struct {
	bucket *rate.Limiter
	logger *zap.Logger

	mu        sync.Mutex
	remaining int // -1 until the first Observe
	reset     time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Snapshot is the last budget reported by the server.
type Snapshot struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Known     bool      `json:"known"`
}

// New returns a limiter allowing perSecond requests with the given burst.
// perSecond <= 0 disables the local bucket.
func New(perSecond float64, burst int, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		bucket:    rate.NewLimiter(limit, burst),
		logger:    logger.Named("ratelimit"),
		remaining: -1,
		now:       time.Now,
		after:     time.After,
	}
}

// Observe records the budget the server reported.
func (l *Limiter) Observe(remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining = remaining
	l.reset = reset
}

// ObserveHeaders reads X-RateLimit-Remaining and X-RateLimit-Reset (unix
// seconds). A Retry-After header, sent with GitHub's secondary limits as
// seconds or an HTTP date, holds requests until it elapses. Responses
// without these headers leave the budget untouched.
func (l *Limiter) ObserveHeaders(h http.Header) {
	if until, ok := l.retryAfter(h.Get("Retry-After")); ok {
		l.Observe(0, until)
		return
	}
	rem, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	var reset time.Time
	if secs, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		reset = time.Unix(secs, 0)
	}
	l.Observe(rem, reset)
}

func (l *Limiter) retryAfter(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return l.now().Add(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Snapshot returns the last observed budget.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Remaining: l.remaining, Reset: l.reset, Known: l.remaining >= 0}
}

// Wait blocks until a request may be sent: first on the token bucket,
// then, when the server budget is exhausted, until its reset time.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	exhausted := l.remaining == 0
	delay := l.reset.Sub(l.now())
	l.mu.Unlock()

	if !exhausted || delay <= 0 {
		return nil
	}
	l.logger.Warn("rate limit exhausted, waiting for reset", zap.Duration("delay", delay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.after(delay):
	}

	l.mu.Lock()
	// The window rolled over; the next response reports the new budget.
	if l.remaining == 0 {
		l.remaining = -1
	}
	l.mu.Unlock()
	return nil
}

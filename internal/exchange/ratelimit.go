// ratelimit.go implements token-bucket rate limiting for venue REST traffic.
//
// Binance USD-M Futures enforces three independent ceilings: raw request
// count per minute, request weight per minute, and order submissions per
// second. This file provides a smooth token-bucket implementation that
// refills continuously (rather than in per-minute bursts) and a Limiter
// that acquires from all applicable buckets atomically before a call is
// allowed on the wire.
//
// Limiters are shared per venue through a process-wide registry so every
// gateway instance for the same venue draws from the same buckets.
package exchange

import (
	"context"
	"sync"
	"time"
)

// maxAcquireSleep caps a single wait between acquire attempts. The venue's
// minute windows roll over well within this bound.
const maxAcquireSleep = 30 * time.Second

// TokenBucket implements a token-bucket rate limiter with continuous refill.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a bucket with the given capacity and refill rate.
// Buckets start full.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now
}

// Wait blocks until a single token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refillLocked(time.Now())
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens returns the currently available token count.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	return tb.tokens
}

// Capacity returns the bucket's burst size.
func (tb *TokenBucket) Capacity() float64 { return tb.capacity }

// LimiterStats is a telemetry snapshot of one venue's limiter.
type LimiterStats struct {
	Acquired          uint64  // successful acquires
	Waits             uint64  // acquire attempts that had to sleep
	RequestsAvailable float64 // tokens left in the request bucket
	WeightAvailable   float64 // tokens left in the weight bucket
	OrdersAvailable   float64 // tokens left in the order bucket
}

// Limiter groups the three venue buckets and acquires from them as a unit.
type Limiter struct {
	mu       sync.Mutex
	requests *TokenBucket
	weight   *TokenBucket
	orders   *TokenBucket

	acquired uint64
	waits    uint64
}

// LimiterConfig carries one venue's published rate ceilings.
type LimiterConfig struct {
	RequestsPerMinute float64
	WeightPerMinute   float64
	OrdersPerSecond   float64
}

// NewLimiter builds a limiter from a venue's ceilings. The order bucket
// allows a ten-second burst at the per-second rate.
func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		requests: NewTokenBucket(cfg.RequestsPerMinute, cfg.RequestsPerMinute/60),
		weight:   NewTokenBucket(cfg.WeightPerMinute, cfg.WeightPerMinute/60),
		orders:   NewTokenBucket(cfg.OrdersPerSecond*10, cfg.OrdersPerSecond),
	}
}

// Acquire blocks until one request token, weight tokens of weight, and (for
// order calls) one order token are all available, then consumes them
// atomically. Individual sleeps are capped at maxAcquireSleep; the loop
// retries until ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, weight float64, isOrder bool) error {
	if weight < 1 {
		weight = 1
	}
	for {
		wait, ok := l.tryAcquire(weight, isOrder)
		if ok {
			return nil
		}
		if wait > maxAcquireSleep {
			wait = maxAcquireSleep
		}

		l.mu.Lock()
		l.waits++
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire consumes from every applicable bucket or from none. On denial
// it returns the longest wait needed for all buckets to have capacity.
func (l *Limiter) tryAcquire(weight float64, isOrder bool) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.requests.mu.Lock()
	l.weight.mu.Lock()
	l.orders.mu.Lock()
	defer l.requests.mu.Unlock()
	defer l.weight.mu.Unlock()
	defer l.orders.mu.Unlock()

	l.requests.refillLocked(now)
	l.weight.refillLocked(now)
	l.orders.refillLocked(now)

	var wait time.Duration
	need := func(tb *TokenBucket, n float64) {
		if tb.tokens < n {
			w := time.Duration((n - tb.tokens) / tb.rate * float64(time.Second))
			if w > wait {
				wait = w
			}
		}
	}
	need(l.requests, 1)
	need(l.weight, weight)
	if isOrder {
		need(l.orders, 1)
	}
	if wait > 0 {
		return wait, false
	}

	l.requests.tokens--
	l.weight.tokens -= weight
	if isOrder {
		l.orders.tokens--
	}
	l.acquired++
	return 0, true
}

// Stats returns a point-in-time telemetry snapshot.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	acquired, waits := l.acquired, l.waits
	l.mu.Unlock()
	return LimiterStats{
		Acquired:          acquired,
		Waits:             waits,
		RequestsAvailable: l.requests.Tokens(),
		WeightAvailable:   l.weight.Tokens(),
		OrdersAvailable:   l.orders.Tokens(),
	}
}

// ————————————————————————————————————————————————————————————————————————
// Per-venue registry
// ————————————————————————————————————————————————————————————————————————

var (
	limiterMu sync.Mutex
	limiters  = map[string]*Limiter{}
)

// LimiterFor returns the process-wide limiter for a venue, creating it from
// cfg on first use. Later calls for the same venue ignore cfg.
func LimiterFor(venue string, cfg LimiterConfig) *Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	if l, ok := limiters[venue]; ok {
		return l
	}
	l := NewLimiter(cfg)
	limiters[venue] = l
	return l
}

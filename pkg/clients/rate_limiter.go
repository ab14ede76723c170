// Package clients provides rate limiting for outbound requests
package clients

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter bounds the request rate using a token bucket. It wraps
// golang.org/x/time/rate and tracks allowed/blocked counts for metrics.
type RateLimiter struct {
	limiter *rate.Limiter

	allowedRequests int64
	blockedRequests int64
}

// NewRateLimiter creates a rate limiter with the given steady rate
// (requests per second) and burst size. A burst of zero defaults to the
// ceiling of the rate so a momentarily idle client can catch up.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow reports whether a request may proceed immediately
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		atomic.AddInt64(&rl.allowedRequests, 1)
		return true
	}
	atomic.AddInt64(&rl.blockedRequests, 1)
	return false
}

// Wait blocks until a request is allowed or the context is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&rl.blockedRequests, 1)
		return err
	}
	atomic.AddInt64(&rl.allowedRequests, 1)
	return nil
}

// SetRate updates the steady rate
func (rl *RateLimiter) SetRate(rps float64) {
	rl.limiter.SetLimit(rate.Limit(rps))
}

// SetBurst updates the burst size
func (rl *RateLimiter) SetBurst(burst int) {
	rl.limiter.SetBurst(burst)
}

// Stats returns allowed and blocked request counts
func (rl *RateLimiter) Stats() (allowed, blocked int64) {
	return atomic.LoadInt64(&rl.allowedRequests), atomic.LoadInt64(&rl.blockedRequests)
}

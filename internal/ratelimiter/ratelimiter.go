package ratelimiter

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter throttles request admission with a token bucket shared by every
// connection.
//
// The bucket refills at requestsPerSecond tokens per second and holds at most
// burst tokens. Each admitted request consumes one token.
//
// A nil *RateLimiter admits everything, so callers can hold one
// unconditionally and skip nil checks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Returns nil (no limiting) when requestsPerSecond is 0. A zero burst is
// raised to the per-second rate, rounded up, so that a fresh bucket can admit
// one second's worth of requests.
func New(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(math.Ceil(requestsPerSecond))
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Enabled reports whether the limiter restricts anything.
func (r *RateLimiter) Enabled() bool {
	return r != nil
}

// Allow consumes a token if one is available and reports whether it did.
// Used under the reject policy: a refused request is answered immediately.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx ends.
// Used under the block policy: the connection stalls instead of failing.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket.
// Only useful for monitoring; the value is stale as soon as it is returned.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return math.Inf(1)
	}
	return r.limiter.Tokens()
}

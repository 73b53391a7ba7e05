// Package ratelimit throttles provider requests with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Limiter spaces out provider requests. A nil *Limiter never blocks.
type Limiter struct {
	bucket *TokenBucket

	totalRequests atomic.Int64
	waited        atomic.Int64 // nanoseconds spent blocked
}

// NewLimiter returns a limiter allowing requestsPerMinute with the given
// burst. It returns nil when requestsPerMinute is not positive.
func NewLimiter(requestsPerMinute, burst int) *Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket: NewTokenBucket(float64(burst), float64(requestsPerMinute)/60.0),
	}
}

// Wait blocks until a request slot is free.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	err := l.bucket.Wait(ctx, 1)
	l.waited.Add(int64(time.Since(start)))
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	l.totalRequests.Add(1)
	return nil
}

// Stats reports the admitted requests and the time spent waiting.
func (l *Limiter) Stats() (requests int64, waited time.Duration) {
	if l == nil {
		return 0, 0
	}
	return l.totalRequests.Load(), time.Duration(l.waited.Load())
}

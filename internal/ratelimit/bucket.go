package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket with the given parameters.
// maxTokens is the maximum number of tokens the bucket can hold.
// refillRate is the number of tokens added per second.
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// TryConsume attempts to consume the specified number of tokens.
// Returns true if successful, false if not enough tokens available.
func (b *TokenBucket) TryConsume(tokens float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= tokens {
		b.tokens -= tokens
		return true
	}
	return false
}

// Wait blocks until the tokens are available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context, tokens float64) error {
	for {
		b.mu.Lock()
		b.refill()

		if b.tokens >= tokens {
			b.tokens -= tokens
			b.mu.Unlock()
			return nil
		}

		deficit := tokens - b.tokens
		waitTime := time.Duration(deficit / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		if waitTime < 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of available tokens.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

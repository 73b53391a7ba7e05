package client

import (
	"context"
	"sync"

	"newsbench/internal/prompt"
	"newsbench/internal/ratelimit"
)

// BuildFunc creates a provider on first use.
type BuildFunc func(ctx context.Context) (Provider, error)

// Handle owns the provider of a run. The provider is built lazily on the
// first request, reused for the rest of the run and closed by Close.
type Handle struct {
	mu       sync.Mutex
	build    BuildFunc
	provider Provider
	limiter  *ratelimit.Limiter
}

// NewHandle returns a handle building its provider with build. A nil
// limiter disables throttling.
func NewHandle(build BuildFunc, limiter *ratelimit.Limiter) *Handle {
	return &Handle{build: build, limiter: limiter}
}

// Provider returns the provider, building it on the first call.
func (h *Handle) Provider(ctx context.Context) (Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider != nil {
		return h.provider, nil
	}
	p, err := h.build(ctx)
	if err != nil {
		return nil, err
	}
	h.provider = p
	return p, nil
}

// Complete waits for a rate-limit slot and forwards to the provider.
func (h *Handle) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	p, err := h.Provider(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.Complete(ctx, req, n)
}

// Close releases the provider. The handle may be reused afterwards and
// builds a fresh provider.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider == nil {
		return nil
	}
	var err error
	if c, ok := h.provider.(Closer); ok {
		err = c.Close()
	}
	h.provider = nil
	return err
}

// Package client holds the completion providers an experiment can target.
// Every provider turns one rendered prompt into exactly n completions.
package client

import (
	"context"
	"fmt"

	"newsbench/internal/prompt"
)

// Provider produces completions for rendered prompts.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Complete returns exactly n completions for req.
	Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error)
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}

// Sampling holds the generation parameters shared by network providers.
type Sampling struct {
	MaxTokens         int
	TopP              float64
	Temperature       float64
	RepetitionPenalty float64
}

// checkCount enforces the one-completion-per-sample contract.
func checkCount(name string, got []string, n int) ([]string, error) {
	if len(got) != n {
		return nil, fmt.Errorf("%w: %s returned %d of %d completions", ErrShortCompletion, name, len(got), n)
	}
	return got, nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

package client

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"newsbench/internal/prompt"
)

// DryRunReply is returned by a dry-run provider without configured replies.
const DryRunReply = "test_only"

// DryRun answers without contacting any backend.
type DryRun struct {
	replies []string
}

// NewDryRun creates a dry-run provider. Completion i of every call is
// replies[i mod len(replies)]; with no replies every completion is DryRunReply.
func NewDryRun(replies []string) *DryRun {
	return &DryRun{replies: append([]string(nil), replies...)}
}

func (d *DryRun) Name() string { return "dry-run" }

func (d *DryRun) Complete(ctx context.Context, _ *prompt.Request, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if len(d.replies) == 0 {
			out[i] = DryRunReply
			continue
		}
		out[i] = d.replies[i%len(d.replies)]
	}
	return out, nil
}

// Synthetic produces random Likert answers for pipeline tests.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic creates a synthetic provider with a seeded generator.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{rng: rand.New(rand.NewSource(seed))}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Complete(ctx context.Context, _ *prompt.Request, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("my answer: L%d", s.rng.Intn(5)+1)
	}
	return out, nil
}

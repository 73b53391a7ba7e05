// Package experiment drives a run: it walks the pending items of each pass,
// asks the provider for completions, scores them and checkpoints after every
// item.
package experiment

import (
	"fmt"

	"newsbench/internal/checkpoint"
	"newsbench/internal/config"
	"newsbench/internal/corpus"
)

// Pass is one sweep over the items, with or without their images.
type Pass string

const (
	PassNoImage   Pass = "no_img"
	PassWithImage Pass = "with_img"
)

// WithImage reports whether prompts of the pass carry the item image.
func (p Pass) WithImage() bool { return p == PassWithImage }

// Suffix is the column suffix of the pass in two-pass tables.
func (p Pass) Suffix() string {
	if p == PassWithImage {
		return "+i"
	}
	return "-i"
}

// Passes returns the passes an experiment performs, in order.
func Passes(e config.Experiment) []Pass {
	switch e {
	case config.ExperimentBoth:
		return []Pass{PassNoImage, PassWithImage}
	case config.ExperimentImage:
		return []Pass{PassWithImage}
	default:
		return []Pass{PassNoImage}
	}
}

// State returns the accumulator of pass p in snap, creating it if needed.
func State(snap *checkpoint.Snapshot, p Pass) *checkpoint.PassState {
	if p == PassWithImage {
		if snap.WithImage == nil {
			snap.WithImage = &checkpoint.PassState{}
		}
		return snap.WithImage
	}
	if snap.NoImage == nil {
		snap.NoImage = &checkpoint.PassState{}
	}
	return snap.NoImage
}

// passState returns the accumulator of pass p, nil when absent.
func passState(snap *checkpoint.Snapshot, p Pass) *checkpoint.PassState {
	if p == PassWithImage {
		return snap.WithImage
	}
	return snap.NoImage
}

// SelectItems returns the ids a run processes: the configured ids, else a
// balanced subset of news_amount items, else every item.
func SelectItems(cfg *config.Config, news *corpus.News) ([]string, error) {
	if len(cfg.NewsIDs) > 0 {
		seen := make(map[string]bool, len(cfg.NewsIDs))
		ids := make([]string, 0, len(cfg.NewsIDs))
		for _, id := range cfg.NewsIDs {
			if _, err := news.Get(id); err != nil {
				return nil, err
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		return ids, nil
	}
	if cfg.NewsAmount > 0 {
		ids := news.Balanced(cfg.NewsAmount)
		if len(ids) == 0 {
			return nil, fmt.Errorf("news_amount %d selects no items", cfg.NewsAmount)
		}
		return ids, nil
	}
	return news.IDs(), nil
}

// CheckpointPath returns the checkpoint file of variant index of a multi-run.
func CheckpointPath(base string, index int) string {
	if index == 0 {
		return base
	}
	return fmt.Sprintf("%s.%02d", base, index)
}

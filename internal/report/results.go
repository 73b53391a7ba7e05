// Package report writes the artifacts of a finished run: the run directory,
// the statistics table, the transcript log and the JSON results snapshot.
package report

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"newsbench/internal/checkpoint"
	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/fileutil"
)

// ResultsVersion is the res.json schema version written by this build.
const ResultsVersion = 1

// ErrResultsVersion is returned when res.json was written with another schema.
var ErrResultsVersion = errors.New("unsupported results version")

// Results is the per-item score snapshot of a run. Two-pass runs fill
// WithImage and NoImage; single-pass runs fill Scores.
type Results struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	Model      string    `json:"model"`
	Experiment string    `json:"experiment"`
	Variant    string    `json:"variant,omitempty"`
	Samples    int       `json:"samples"`
	Likert     bool      `json:"likert"`
	Agreement  bool      `json:"agreement"`
	CreatedAt  time.Time `json:"created_at"`

	WithImage map[string]classify.Score `json:"with_img,omitempty"`
	NoImage   map[string]classify.Score `json:"no_img,omitempty"`
	Scores    map[string]classify.Score `json:"scores,omitempty"`
}

// FromSnapshot collects the scores of a checkpoint snapshot.
func FromSnapshot(snap *checkpoint.Snapshot, variant string) *Results {
	fp := snap.Fingerprint
	r := &Results{
		Version:    ResultsVersion,
		RunID:      snap.RunID,
		Model:      fp.Model,
		Experiment: fp.Experiment,
		Variant:    variant,
		Samples:    fp.Samples,
		Likert:     fp.Likert,
		Agreement:  fp.Agreement,
		CreatedAt:  time.Now().UTC(),
	}
	if config.Experiment(fp.Experiment) == config.ExperimentBoth {
		r.WithImage = scoreMap(snap.WithImage)
		r.NoImage = scoreMap(snap.NoImage)
		return r
	}
	if snap.WithImage != nil {
		r.Scores = scoreMap(snap.WithImage)
	} else {
		r.Scores = scoreMap(snap.NoImage)
	}
	return r
}

func scoreMap(p *checkpoint.PassState) map[string]classify.Score {
	m := make(map[string]classify.Score, p.Len())
	if p == nil {
		return m
	}
	for i, id := range p.Done {
		m[id] = p.Scores[i]
	}
	return m
}

// TwoPass reports whether the results hold both passes.
func (r *Results) TwoPass() bool {
	return r.WithImage != nil || r.NoImage != nil
}

// IDs returns the scored item ids in sorted order.
func (r *Results) IDs() []string {
	src := r.Scores
	if r.TwoPass() {
		src = r.WithImage
	}
	ids := make([]string, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// column groups of a table, in column order
type passColumns struct {
	suffix string
	scores map[string]classify.Score
}

func (r *Results) columns() []passColumns {
	if r.TwoPass() {
		return []passColumns{
			{suffix: "+i", scores: r.WithImage},
			{suffix: "-i", scores: r.NoImage},
		}
	}
	return []passColumns{{scores: r.Scores}}
}

// SaveResults writes r to path as JSON.
func SaveResults(path string, r *Results) error {
	if err := fileutil.WriteJSON(path, r, 0o644); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// LoadResults reads a res.json file.
func LoadResults(path string) (*Results, error) {
	var r Results
	if err := fileutil.ReadJSON(path, &r); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if r.Version != ResultsVersion {
		return nil, fmt.Errorf("%w: %d", ErrResultsVersion, r.Version)
	}
	return &r, nil
}

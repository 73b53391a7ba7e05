// Package checkpoint persists the accumulated state of a run after every
// item so an aborted run can resume without repeating provider calls.
package checkpoint

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"newsbench/internal/classify"
	"newsbench/internal/corpus"
	"newsbench/internal/fileutil"
	"newsbench/internal/prompt"
)

// FormatVersion is the checkpoint schema version written by this build.
const FormatVersion = 1

var (
	// ErrNotFound is returned when no checkpoint exists at the store path.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrIncompatible is returned for checkpoints written with another schema.
	ErrIncompatible = errors.New("incompatible checkpoint version")
	// ErrCorrupt is returned when a checkpoint breaks its own invariants.
	ErrCorrupt = errors.New("corrupt checkpoint")
	// ErrMismatch is returned when a checkpoint belongs to a different run setup.
	ErrMismatch = errors.New("checkpoint was written for a different run")
)

// Fingerprint identifies the settings a checkpoint is valid for.
type Fingerprint struct {
	Model      string         `json:"model"`
	Experiment string         `json:"experiment"`
	Samples    int            `json:"samples"`
	Likert     bool           `json:"likert"`
	Agreement  bool           `json:"agreement"`
	Pre        []string       `json:"pre,omitempty"`
	Post       []string       `json:"post,omitempty"`
	Persona    corpus.Persona `json:"persona,omitempty"`
}

// Equal compares two fingerprints, treating nil and empty collections alike.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Model == o.Model &&
		f.Experiment == o.Experiment &&
		f.Samples == o.Samples &&
		f.Likert == o.Likert &&
		f.Agreement == o.Agreement &&
		slices.Equal(f.Pre, o.Pre) &&
		slices.Equal(f.Post, o.Post) &&
		maps.Equal(f.Persona, o.Persona)
}

// PassState is the accumulated output of one pass. The five slices are
// parallel: entry i of each belongs to item Done[i].
type PassState struct {
	Prompts     []prompt.Transcript `json:"prompts"`
	Completions [][]string          `json:"completions"`
	Scores      []classify.Score    `json:"scores"`
	ImageNames  []string            `json:"image_names"`
	Done        []string            `json:"done"`
}

// Len returns the number of processed items.
func (p *PassState) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Done)
}

// Append records one processed item.
func (p *PassState) Append(id string, transcript prompt.Transcript, completions []string, score classify.Score, imageName string) {
	p.Prompts = append(p.Prompts, transcript)
	p.Completions = append(p.Completions, completions)
	p.Scores = append(p.Scores, score)
	p.ImageNames = append(p.ImageNames, imageName)
	p.Done = append(p.Done, id)
}

// Pending returns ids not yet processed, keeping their order.
func (p *PassState) Pending(ids []string) []string {
	done := make(map[string]bool, p.Len())
	if p != nil {
		for _, id := range p.Done {
			done[id] = true
		}
	}
	var out []string
	for _, id := range ids {
		if !done[id] {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks the parallel-slice and unique-id invariants.
func (p *PassState) Validate() error {
	if p == nil {
		return nil
	}
	n := len(p.Done)
	if len(p.Prompts) != n || len(p.Completions) != n || len(p.Scores) != n || len(p.ImageNames) != n {
		return fmt.Errorf("%w: accumulator lengths differ (prompts=%d completions=%d scores=%d images=%d done=%d)",
			ErrCorrupt, len(p.Prompts), len(p.Completions), len(p.Scores), len(p.ImageNames), n)
	}
	seen := make(map[string]bool, n)
	for _, id := range p.Done {
		if seen[id] {
			return fmt.Errorf("%w: item %q recorded twice", ErrCorrupt, id)
		}
		seen[id] = true
	}
	return nil
}

// Snapshot is the serialized checkpoint.
type Snapshot struct {
	Version     int         `json:"version"`
	RunID       string      `json:"run_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	SavedAt     time.Time   `json:"saved_at"`
	// Finished is set once every pass of the run has completed.
	Finished  bool       `json:"finished"`
	NoImage   *PassState `json:"no_image,omitempty"`
	WithImage *PassState `json:"with_image,omitempty"`
}

// Validate checks version and pass invariants.
func (s *Snapshot) Validate() error {
	if s.Version != FormatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrIncompatible, s.Version, FormatVersion)
	}
	if err := s.NoImage.Validate(); err != nil {
		return fmt.Errorf("no-image pass: %w", err)
	}
	if err := s.WithImage.Validate(); err != nil {
		return fmt.Errorf("with-image pass: %w", err)
	}
	return nil
}

// Store reads and writes the checkpoint file. It holds no lock; one run per
// path at a time.
type Store struct {
	Path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Save overwrites the checkpoint atomically with both passes.
func (s *Store) Save(snap *Snapshot) error {
	snap.Version = FormatVersion
	snap.SavedAt = time.Now().UTC()
	if err := fileutil.WriteJSON(s.Path, snap, 0o644); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load reads and validates the checkpoint.
func (s *Store) Load() (*Snapshot, error) {
	if !s.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	var snap Snapshot
	if err := fileutil.ReadJSON(s.Path, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Resume loads the checkpoint and refuses it unless it matches fp.
func (s *Store) Resume(fp Fingerprint) (*Snapshot, error) {
	snap, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !snap.Fingerprint.Equal(fp) {
		return nil, fmt.Errorf("%w: saved for %s/%s", ErrMismatch, snap.Fingerprint.Model, snap.Fingerprint.Experiment)
	}
	return snap, nil
}

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	return fileutil.Exists(s.Path)
}

// Remove deletes the checkpoint. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newsbench/internal/checkpoint"
	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/corpus"
	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
)

// ErrNoCheckpoint is returned when recovery is requested but nothing was saved.
var ErrNoCheckpoint = errors.New("recovery requested but no checkpoint exists")

// Completer produces n completions for a request.
type Completer interface {
	Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error)
}

// ProgressUpdate describes the run after one item.
type ProgressUpdate struct {
	Variant   int
	Pass      Pass
	ItemID    string
	Completed int // items done in this pass, resumed ones included
	Total     int
	Score     classify.Score
	Warnings  []classify.Warning
}

// Progress returns the completed fraction of the pass, 0.0 to 1.0.
func (u ProgressUpdate) Progress() float64 {
	if u.Total == 0 {
		return 1
	}
	return float64(u.Completed) / float64(u.Total)
}

// Outcome is the state of a finished variant.
type Outcome struct {
	Variant  config.Variant
	Items    []string
	Snapshot *checkpoint.Snapshot
	// Calls counts the provider requests issued by this invocation.
	Calls    int
	Resumed  bool
	Duration time.Duration
}

// Runner executes the variants of a configuration.
type Runner struct {
	cfg        *config.Config
	model      models.Resolved
	composer   *prompt.Composer
	completer  Completer
	classifier classify.Classifier

	onProgress func(ProgressUpdate)
	onPass     func(variant int, p Pass, pending, total int)
}

// NewRunner creates a runner for cfg. cfg must be normalized and valid.
func NewRunner(cfg *config.Config, model models.Resolved, composer *prompt.Composer, completer Completer) *Runner {
	return &Runner{
		cfg:        cfg,
		model:      model,
		composer:   composer,
		completer:  completer,
		classifier: classify.Classifier{Likert: cfg.LikertScale, Agreement: cfg.UseAgreement()},
	}
}

// SetProgressHandler sets the handler called after every processed item.
func (r *Runner) SetProgressHandler(fn func(ProgressUpdate)) {
	r.onProgress = fn
}

// SetPassHandler sets the handler called when a pass starts.
func (r *Runner) SetPassHandler(fn func(variant int, p Pass, pending, total int)) {
	r.onPass = fn
}

// Fingerprint identifies the settings of variant v.
func (r *Runner) Fingerprint(v config.Variant) checkpoint.Fingerprint {
	return checkpoint.Fingerprint{
		Model:      r.model.Name(),
		Experiment: string(r.cfg.Experiment),
		Samples:    r.cfg.Samples,
		Likert:     r.cfg.LikertScale,
		Agreement:  r.cfg.UseAgreement(),
		Pre:        v.Pre,
		Post:       []string(r.cfg.DialogsPost),
		Persona:    corpus.Persona(v.Persona),
	}
}

// RunAll runs every variant in order, each with its own checkpoint derived
// from the configured path. done is called after each variant finishes; a
// finished variant found while recovering a multi-run is skipped.
func (r *Runner) RunAll(ctx context.Context, variants []config.Variant, items []string, done func(*Outcome) error) error {
	multi := len(variants) > 1
	for i, v := range variants {
		store := checkpoint.NewStore(CheckpointPath(r.cfg.Output.Checkpoint, v.Index))
		if multi {
			logging.Info("starting variant", "run", i+1, "of", len(variants), "variant", v.Label())
		}

		snap, err := r.prepare(store, v, multi)
		if err != nil {
			return fmt.Errorf("variant %d: %w", v.Index, err)
		}
		if snap == nil {
			logging.Info("variant already finished, skipping", "variant", v.Label(), "checkpoint", store.Path)
			continue
		}

		out, err := r.Run(ctx, v, items, store, snap)
		if err != nil {
			return fmt.Errorf("variant %d: %w", v.Index, err)
		}
		if done != nil {
			if err := done(out); err != nil {
				return err
			}
		}
	}
	return nil
}

// prepare returns the snapshot variant v starts from, or nil when a
// multi-run recovery finds the variant already finished.
func (r *Runner) prepare(store *checkpoint.Store, v config.Variant, multi bool) (*checkpoint.Snapshot, error) {
	fp := r.Fingerprint(v)

	if !r.cfg.Recover {
		if err := store.Remove(); err != nil {
			return nil, fmt.Errorf("remove stale checkpoint: %w", err)
		}
		return newSnapshot(fp), nil
	}

	snap, err := store.Resume(fp)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		if !multi {
			return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, store.Path)
		}
		return newSnapshot(fp), nil
	case err != nil:
		return nil, err
	}
	if snap.Finished && multi {
		return nil, nil
	}
	logging.Info("recovering from checkpoint",
		"checkpoint", store.Path,
		"run_id", snap.RunID,
		"no_image_done", snap.NoImage.Len(),
		"with_image_done", snap.WithImage.Len())
	return snap, nil
}

func newSnapshot(fp checkpoint.Fingerprint) *checkpoint.Snapshot {
	return &checkpoint.Snapshot{
		Version:     checkpoint.FormatVersion,
		RunID:       uuid.NewString(),
		Fingerprint: fp,
	}
}

// Run processes the pending items of every pass of v, starting from snap and
// saving it to store after each item. A provider failure aborts the run; the
// failed item is not recorded, so a resumed run repeats it.
func (r *Runner) Run(ctx context.Context, v config.Variant, items []string, store *checkpoint.Store, snap *checkpoint.Snapshot) (*Outcome, error) {
	start := time.Now()
	passes := Passes(r.cfg.Experiment)
	out := &Outcome{
		Variant:  v,
		Items:    items,
		Snapshot: snap,
		Resumed:  snap.NoImage.Len()+snap.WithImage.Len() > 0,
	}

	// Composition errors, unreadable images included, are configuration
	// errors; surface them before anything is spent.
	for _, p := range passes {
		for _, id := range passState(snap, p).Pending(items) {
			if _, err := r.request(v, p, id); err != nil {
				return nil, fmt.Errorf("%s pass, item %s: %w", p, id, err)
			}
		}
	}

	for _, p := range passes {
		state := State(snap, p)
		pending := state.Pending(items)
		if r.onPass != nil {
			r.onPass(v.Index, p, len(pending), len(items))
		}
		logging.Debug("starting pass", "pass", p, "pending", len(pending), "total", len(items))

		for _, id := range pending {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := r.processItem(ctx, v, p, id)
			if err != nil {
				return nil, fmt.Errorf("%s pass, item %s: %w", p, id, err)
			}
			out.Calls++

			state.Append(id, rec.transcript, rec.completions, rec.score, rec.imageName)
			if err := store.Save(snap); err != nil {
				return nil, err
			}

			if r.onProgress != nil {
				r.onProgress(ProgressUpdate{
					Variant:   v.Index,
					Pass:      p,
					ItemID:    id,
					Completed: state.Len(),
					Total:     len(items),
					Score:     rec.score,
					Warnings:  rec.warnings,
				})
			}
		}
	}

	snap.Finished = true
	if err := store.Save(snap); err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	logging.Info("run finished",
		"run_id", snap.RunID,
		"model", r.model.Name(),
		"experiment", r.cfg.Experiment,
		"calls", out.Calls,
		"elapsed", out.Duration.Round(time.Millisecond))
	return out, nil
}

type record struct {
	transcript  prompt.Transcript
	completions []string
	score       classify.Score
	warnings    []classify.Warning
	imageName   string
}

func (r *Runner) options(v config.Variant, p Pass) prompt.Options {
	return prompt.Options{
		Pre:       v.Pre,
		Post:      []string(r.cfg.DialogsPost),
		WithImage: p.WithImage(),
		Source:    r.cfg.InfoSource,
		More:      r.cfg.InfoMore,
		Persona:   corpus.Persona(v.Persona),
	}
}

// request composes and renders item id for pass p.
func (r *Runner) request(v config.Variant, p Pass, id string) (*prompt.Request, error) {
	comp, err := r.composer.Compose(id, r.options(v, p))
	if err != nil {
		return nil, err
	}
	if r.cfg.Experiment == config.ExperimentCheckNews {
		return r.plainRequest(comp.Text), nil
	}
	return r.composer.Render(comp, r.model, p.WithImage())
}

func (r *Runner) processItem(ctx context.Context, v config.Variant, p Pass, id string) (*record, error) {
	req, err := r.request(v, p, id)
	if err != nil {
		return nil, err
	}

	logging.Debug("requesting completions", "item", id, "pass", p, "samples", r.cfg.Samples)
	completions, err := r.completer.Complete(ctx, req, r.cfg.Samples)
	if err != nil {
		return nil, err
	}

	var (
		score    classify.Score
		warnings []classify.Warning
	)
	if r.cfg.Experiment == config.ExperimentCheckNews {
		score, warnings = classify.Check(completions)
	} else {
		score, warnings = r.classifier.Classify(completions)
	}
	for _, w := range warnings {
		logging.Warn("unclear reply", "item", id, "pass", p, "detail", w.String())
	}

	return &record{
		transcript:  prompt.Prune(req),
		completions: completions,
		score:       score,
		warnings:    warnings,
		imageName:   req.ImageName,
	}, nil
}

// plainRequest wraps text without images or prefill, in the model's dialect.
func (r *Runner) plainRequest(text string) *prompt.Request {
	if r.model.Dialect == models.DialectCompletion {
		return &prompt.Request{Dialect: models.DialectCompletion, Text: text}
	}
	return prompt.Plain(text)
}

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/experiment"
	"newsbench/internal/fileutil"
	"newsbench/internal/logging"
	"newsbench/internal/models"
)

// Run is the written report of one variant.
type Run struct {
	Dir      *RunDir
	Results  *Results
	Table    *Table
	Archived int
}

// Writer turns finished variants into run directories.
type Writer struct {
	cfg    *config.Config
	model  models.Resolved
	header Header
	now    func() time.Time
}

// NewWriter creates a writer for runs of cfg against model.
func NewWriter(cfg *config.Config, model models.Resolved) *Writer {
	return &Writer{
		cfg:    cfg,
		model:  model,
		header: NewHeader(cfg),
		now:    time.Now,
	}
}

// Write creates a fresh run directory and writes every artifact of out.
func (w *Writer) Write(out *experiment.Outcome) (*Run, error) {
	dir, err := CreateRunDir(w.cfg.Output.Dir, w.now())
	if err != nil {
		return nil, err
	}
	log := logging.With("run_dir", dir.Path)

	res := FromSnapshot(out.Snapshot, out.Variant.Label())
	if err := SaveResults(dir.File(ResultsFile), res); err != nil {
		return nil, err
	}

	t, err := Stats(res)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	if err := t.WriteCSV(dir.File(StatsFile)); err != nil {
		return nil, err
	}

	if err := w.writeLog(dir, t, out); err != nil {
		return nil, err
	}
	if err := w.copyConfig(dir); err != nil {
		return nil, err
	}

	archived, err := dir.Archive(w.cfg.Output.Archive)
	if err != nil {
		log.Warn("archiving inputs failed", "error", err)
	}

	log.Info("results written", "variant", out.Variant.Label(), "items", len(res.IDs()), "archived", archived)
	return &Run{Dir: dir, Results: res, Table: t, Archived: archived}, nil
}

func (w *Writer) writeLog(dir *RunDir, t *Table, out *experiment.Outcome) error {
	f, err := os.Create(dir.File(LogFile))
	if err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	opts := LogOptions{
		Completion: w.model.Dialect == models.DialectCompletion,
		Classifier: classify.Classifier{Likert: w.cfg.LikertScale, Agreement: w.cfg.UseAgreement()},
	}
	if err := WriteLog(f, w.header, t, out.Snapshot, opts); err != nil {
		f.Close()
		return fmt.Errorf("write log: %w", err)
	}
	return f.Close()
}

// copyConfig keeps the configuration file next to the results; without a
// file the effective configuration is written instead.
func (w *Writer) copyConfig(dir *RunDir) error {
	dst := filepath.Join(dir.Src, ConfigFile)
	if w.cfg.Path != "" && fileutil.Exists(w.cfg.Path) {
		return copyFile(w.cfg.Path, dst)
	}
	return fileutil.AtomicWrite(dst, []byte(w.cfg.Dump()), 0o644)
}

// Recompute rewrites res.csv of a run directory from its res.json.
func Recompute(runDir string) (*Table, error) {
	d := &RunDir{Path: runDir}
	res, err := LoadResults(d.File(ResultsFile))
	if err != nil {
		return nil, err
	}
	t, err := Stats(res)
	if err != nil {
		return nil, err
	}
	if err := t.WriteCSV(d.File(StatsFile)); err != nil {
		return nil, err
	}
	return t, nil
}

// Package resultdb exports finished runs to a SQLite database for
// downstream statistics.
package resultdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/report"
)

// DB is a results database.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	var tableCount int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := d.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := d.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = d.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Run is one exported run.
type Run struct {
	ID         int64
	RunID      string
	Model      string
	Experiment string
	Variant    string
	Samples    int
	Likert     bool
	Agreement  bool
	RunDir     string
	CreatedAt  time.Time
}

// Score is one exported (pass, item) score.
type Score struct {
	Pass      string
	ItemID    string
	Yes       sql.NullFloat64
	No        sql.NullFloat64
	Unk       sql.NullFloat64
	Bins      []float64
	Agreement sql.NullFloat64
	Answer    string
}

// Insert exports res in a single transaction. An earlier export of the same
// run is replaced.
func (d *DB) Insert(ctx context.Context, res *report.Results, runDir string) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var old int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM runs WHERE run_id = ?", res.RunID).Scan(&old)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, "DELETE FROM scores WHERE run = ?", old); err != nil {
			return 0, fmt.Errorf("delete old scores: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", old); err != nil {
			return 0, fmt.Errorf("delete old run: %w", err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find run: %w", err)
	}

	created := res.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	r, err := tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, model, experiment, variant, samples, likert, agreement, run_dir, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Model, res.Experiment, res.Variant, res.Samples,
		res.Likert, res.Agreement, runDir, created.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scores(run, pass, item_id, yes, no, unk, bins, agreement, answer)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare score insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passes(res) {
		for item, s := range p.scores {
			row := toRow(s)
			if _, err := stmt.ExecContext(ctx, id, p.name, item,
				row.Yes, row.No, row.Unk, row.bins, row.Agreement, row.Answer); err != nil {
				return 0, fmt.Errorf("insert score %s/%s: %w", p.name, item, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

type namedPass struct {
	name   string
	scores map[string]classify.Score
}

func passes(res *report.Results) []namedPass {
	if res.TwoPass() {
		return []namedPass{
			{name: "no_img", scores: res.NoImage},
			{name: "with_img", scores: res.WithImage},
		}
	}
	name := "no_img"
	if config.Experiment(res.Experiment) == config.ExperimentImage {
		name = "with_img"
	}
	return []namedPass{{name: name, scores: res.Scores}}
}

type scoreRow struct {
	Score
	bins sql.NullString
}

func toRow(s classify.Score) scoreRow {
	var row scoreRow
	switch s.Kind {
	case classify.KindBoolean:
		yes, no, unk := s.Fractions()
		row.Yes = sql.NullFloat64{Float64: yes, Valid: true}
		row.No = sql.NullFloat64{Float64: no, Valid: true}
		row.Unk = sql.NullFloat64{Float64: unk, Valid: true}
	case classify.KindLikert:
		bins := s.Bins
		if agr, ok := s.Agreement(); ok {
			row.Agreement = sql.NullFloat64{Float64: agr, Valid: true}
			bins = bins[:classify.LikertBins]
		}
		data, _ := json.Marshal(bins)
		row.bins = sql.NullString{String: string(data), Valid: true}
	case classify.KindCheck:
		row.Answer = s.Answer
	}
	return row
}

// Runs lists the exported runs, oldest first.
func (d *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, run_id, model, experiment, variant, samples, likert, agreement, run_dir, created_at
		 FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Model, &r.Experiment, &r.Variant,
			&r.Samples, &r.Likert, &r.Agreement, &r.RunDir, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Scores returns the scores of a run ordered by pass and item.
func (d *DB) Scores(ctx context.Context, runID string) ([]Score, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT s.pass, s.item_id, s.yes, s.no, s.unk, s.bins, s.agreement, s.answer
		 FROM scores s JOIN runs r ON r.id = s.run
		 WHERE r.run_id = ?
		 ORDER BY s.pass, s.item_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var (
			s      Score
			bins   sql.NullString
			answer sql.NullString
		)
		if err := rows.Scan(&s.Pass, &s.ItemID, &s.Yes, &s.No, &s.Unk, &bins, &s.Agreement, &answer); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if bins.Valid {
			if err := json.Unmarshal([]byte(bins.String), &s.Bins); err != nil {
				return nil, fmt.Errorf("decode bins of %s: %w", s.ItemID, err)
			}
		}
		s.Answer = answer.String
		out = append(out, s)
	}
	return out, rows.Err()
}

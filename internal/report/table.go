package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/fileutil"
)

// Table is the per-item statistics of a run, the last row being the mean.
type Table struct {
	Header []string
	Rows   [][]string
}

// Stats builds the statistics table of r: one row per item sorted by id,
// then the column means.
func Stats(r *Results) (*Table, error) {
	if config.Experiment(r.Experiment) == config.ExperimentCheckNews {
		return checkTable(r), nil
	}

	cols := r.columns()
	t := &Table{Header: []string{"News"}}
	for _, c := range cols {
		t.Header = append(t.Header, r.labels(c.suffix)...)
	}

	ids := r.IDs()
	sums := make([]float64, len(t.Header)-1)
	for _, id := range ids {
		row := []string{id}
		var values []float64
		for _, c := range cols {
			s, ok := c.scores[id]
			if !ok {
				return nil, fmt.Errorf("item %s has no score for pass %q", id, c.suffix)
			}
			v, err := r.values(id, s)
			if err != nil {
				return nil, err
			}
			values = append(values, v...)
		}
		for i, v := range values {
			sums[i] += v
			row = append(row, format(v))
		}
		t.Rows = append(t.Rows, row)
	}

	if len(ids) > 0 {
		mean := []string{"mean"}
		for _, s := range sums {
			mean = append(mean, format(s/float64(len(ids))))
		}
		t.Rows = append(t.Rows, mean)
	}
	return t, nil
}

func (r *Results) labels(suffix string) []string {
	if !r.Likert {
		return []string{"YES" + suffix, "NO" + suffix, "UNK" + suffix}
	}
	labels := []string{"UNK" + suffix}
	for i := 1; i < classify.LikertBins; i++ {
		labels = append(labels, fmt.Sprintf("L%d%s", i, suffix))
	}
	if r.Agreement {
		labels = append(labels, "AGR"+suffix)
	}
	return labels
}

func (r *Results) values(id string, s classify.Score) ([]float64, error) {
	if !r.Likert {
		yes, no, unk := s.Fractions()
		return []float64{yes, no, unk}, nil
	}
	want := classify.LikertBins
	if r.Agreement {
		want++
	}
	if len(s.Bins) < want {
		return nil, fmt.Errorf("item %s: %d Likert values, want %d", id, len(s.Bins), want)
	}
	return s.Bins[:want], nil
}

func checkTable(r *Results) *Table {
	t := &Table{Header: []string{"News", "ANSWER"}}
	for _, id := range r.IDs() {
		t.Rows = append(t.Rows, []string{id, r.Scores[id].Answer})
	}
	return t
}

func format(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// CSV renders the table as comma separated values.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the table to path.
func (t *Table) WriteCSV(path string) error {
	data, err := t.CSV()
	if err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	return fileutil.AtomicWrite(path, data, 0o644)
}

// Aligned renders the table as whitespace aligned columns.
func (t *Table) Aligned() string {
	w := t.writer()
	style := table.StyleDefault
	style.Options = table.OptionsNoBordersAndSeparators
	style.Format.Header = text.FormatDefault
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "  "
	w.SetStyle(style)
	return trimLines(w.Render()) + "\n"
}

// Markdown renders the table as a GitHub flavored Markdown table.
func (t *Table) Markdown() string {
	return t.writer().RenderMarkdown() + "\n"
}

func (t *Table) writer() table.Writer {
	w := table.NewWriter()
	w.AppendHeader(toRow(t.Header))
	for _, r := range t.Rows {
		w.AppendRow(toRow(r))
	}
	return w
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

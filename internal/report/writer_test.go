package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbench/internal/checkpoint"
	"newsbench/internal/config"
	"newsbench/internal/experiment"
	"newsbench/internal/logging"
	"newsbench/internal/models"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func TestWriterWritesRunDirectory(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "news.json")
	require.NoError(t, os.WriteFile(input, []byte(`[]`), 0o644))
	cfgPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model: gpt-4o\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Model = "gpt-4o"
	cfg.Experiment = config.ExperimentBoth
	cfg.Path = cfgPath
	cfg.Output.Dir = filepath.Join(dir, "res")
	cfg.Output.Archive = []string{filepath.Join(dir, "*.json")}

	m, err := models.Lookup(cfg.Model)
	require.NoError(t, err)

	snap := &checkpoint.Snapshot{
		RunID:       "run-1",
		Fingerprint: checkpoint.Fingerprint{Model: "gpt-4o", Experiment: "both", Samples: 2},
		NoImage:     &checkpoint.PassState{},
		WithImage:   &checkpoint.PassState{},
	}
	snap.NoImage.Append("t001", transcript("Share?"), []string{"<yes>", "<no>"}, boolScore(t, "<yes>", "<no>"), "")
	snap.WithImage.Append("t001", transcript("Share?"), []string{"<yes>", "<yes>"}, boolScore(t, "<yes>", "<yes>"), "t001.jpg")

	w := NewWriter(cfg, m)
	w.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local) }
	run, err := w.Write(&experiment.Outcome{
		Variant:  config.Variant{Pre: []string{"intro"}},
		Items:    []string{"t001"},
		Snapshot: snap,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Output.Dir, "25-01-02_03-04-05"), run.Dir.Path)
	assert.Equal(t, 1, run.Archived)
	assert.FileExists(t, filepath.Join(run.Dir.Data, "news.json"))

	copied, err := os.ReadFile(filepath.Join(run.Dir.Src, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "model: gpt-4o\n", string(copied))

	csvData, err := os.ReadFile(run.Dir.File(StatsFile))
	require.NoError(t, err)
	assert.Equal(t,
		"News,YES+i,NO+i,UNK+i,YES-i,NO-i,UNK-i\n"+
			"t001,1.000,0.000,0.000,0.500,0.500,0.000\n"+
			"mean,1.000,0.000,0.000,0.500,0.500,0.000\n",
		string(csvData))

	logData, err := os.ReadFile(run.Dir.File(LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "News t001 with image t001.jpg")
	assert.Contains(t, string(logData), "YES+i")

	res, err := LoadResults(run.Dir.File(ResultsFile))
	require.NoError(t, err)
	assert.Equal(t, "intro", res.Variant)
	assert.Equal(t, "run-1", res.RunID)

	// stats recomputes the table from res.json alone
	require.NoError(t, os.Remove(run.Dir.File(StatsFile)))
	tbl, err := Recompute(run.Dir.Path)
	require.NoError(t, err)
	again, err := os.ReadFile(run.Dir.File(StatsFile))
	require.NoError(t, err)
	assert.Equal(t, csvData, again)
	assert.Equal(t, "mean", tbl.Rows[len(tbl.Rows)-1][0])
}

func TestWriterDumpsConfigWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Experiment = config.ExperimentNoImage
	cfg.Output.Dir = dir
	cfg.Output.Archive = nil

	m, err := models.Lookup(cfg.Model)
	require.NoError(t, err)

	snap := &checkpoint.Snapshot{
		Fingerprint: checkpoint.Fingerprint{Experiment: "news_noimage"},
		NoImage:     &checkpoint.PassState{},
	}
	run, err := NewWriter(cfg, m).Write(&experiment.Outcome{Snapshot: snap})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(run.Dir.Src, ConfigFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "model: no-model"))
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"newsbench/internal/checkpoint"
	"newsbench/internal/experiment"
	"newsbench/internal/highlight"
	"newsbench/internal/models"
	"newsbench/internal/report"
)

func newModelsCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := catalogTable(models.Family(family))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), t.Aligned())
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "only list one provider family (none, openai, local, anthropic, gemini)")
	return cmd
}

// catalogTable lists the catalog, or the models of one family. The index
// column is the catalog index accepted by --model.
func catalogTable(family models.Family) (*report.Table, error) {
	list := models.Catalog
	if family != "" {
		list = models.ByFamily(family)
		if len(list) == 0 {
			return nil, fmt.Errorf("unknown provider family %q", family)
		}
	}
	t := &report.Table{Header: []string{"#", "ID", "SHORT", "DIALECT", "PROVIDER", "IMAGES"}}
	for _, m := range list {
		i := slices.IndexFunc(models.Catalog, func(c models.Model) bool { return c.ID == m.ID })
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(i), m.ID, m.ShortName, string(m.Dialect), string(m.Family), m.ImageMode().String(),
		})
	}
	return t, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <run-dir>...",
		Short: "Recompute res.csv of run directories from their res.json",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, dir := range args {
				t, err := report.Recompute(dir)
				if err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}
				fmt.Printf("%s\n\n%s\n", filepath.Join(dir, report.StatsFile), t.Aligned())
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "show <run-dir>",
		Short: "Render the summary of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := report.LoadResults(filepath.Join(args[0], report.ResultsFile))
			if err != nil {
				return err
			}
			t, err := report.Stats(res)
			if err != nil {
				return err
			}
			if style == "" && !isTerminal(os.Stdout) {
				style = "notty"
			}
			out, err := report.RenderMarkdown(report.Markdown(res, t), style, 100)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", "", "glamour style: dark, light or notty")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var (
		raw   bool
		style string
	)
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show a checkpoint or another run artifact",
		Long: `inspect prints a checkpoint (by default the one of the configured run) or any
other run artifact with syntax highlighting. For checkpoints it first reports
how far each pass got.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := inspectPath(cmd, args)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			lang := highlight.DetectLanguage(path)
			if strings.Contains(filepath.Base(path), ".json") {
				lang = "json"
			}
			if lang == "json" {
				describeCheckpoint(path)
			}

			if raw || !isTerminal(os.Stdout) {
				fmt.Print(string(data))
				return nil
			}
			fmt.Println(highlight.New(style).HighlightWithLineNumbers(string(data), lang, 1))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print without highlighting")
	cmd.Flags().StringVar(&style, "style", "", "chroma style (monokai, dracula, github-dark, ...)")
	return cmd
}

// inspectPath returns the file argument, else the configured checkpoint.
func inspectPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	path := cfg.Output.Checkpoint
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("no checkpoint at %s", path)
	}
	return path, nil
}

// describeCheckpoint prints the progress of a checkpoint to stderr. Files
// that are not checkpoints are silently skipped.
func describeCheckpoint(path string) {
	snap, err := checkpoint.NewStore(path).Load()
	if err != nil || snap.RunID == "" {
		return
	}
	fp := snap.Fingerprint
	fmt.Fprintf(os.Stderr, "run %s: %s / %s, %d samples, saved %s\n",
		snap.RunID, fp.Model, fp.Experiment, fp.Samples, snap.SavedAt.Local().Format("2006-01-02 15:04:05"))
	for _, p := range []experiment.Pass{experiment.PassNoImage, experiment.PassWithImage} {
		state := snap.NoImage
		if p == experiment.PassWithImage {
			state = snap.WithImage
		}
		if state == nil {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %-8s %d items done\n", p, state.Len())
	}
	if snap.Finished {
		fmt.Fprintln(os.Stderr, "  finished")
	}
}

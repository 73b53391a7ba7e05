package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newsbench/internal/client"
	"newsbench/internal/config"
	"newsbench/internal/corpus"
	"newsbench/internal/experiment"
	"newsbench/internal/fileutil"
	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
	"newsbench/internal/ratelimit"
	"newsbench/internal/report"
	"newsbench/internal/resultdb"
	"newsbench/internal/ui"
)

func runExperiment(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := models.Lookup(cfg.Model)
	if err != nil {
		return err
	}

	composer, err := loadCorpus(cfg)
	if err != nil {
		return err
	}
	items, err := experiment.SelectItems(cfg, composer.News)
	if err != nil {
		return err
	}
	variants, err := cfg.Variants(composer.Dialogs.Profiles)
	if err != nil {
		return err
	}

	logging.Info("starting experiment",
		"model", m.Name(),
		"experiment", cfg.Experiment,
		"items", len(items),
		"samples", cfg.Samples,
		"runs", len(variants),
		"dry_run", cfg.Debug)

	handle := client.NewHandle(func(ctx context.Context) (client.Provider, error) {
		return client.NewProvider(ctx, cfg, m)
	}, ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize))
	defer func() {
		if err := handle.Close(); err != nil {
			logging.Warn("closing provider failed", "error", err)
		}
	}()

	var db *resultdb.DB
	if cfg.Output.ResultsDB != "" {
		db, err = resultdb.Open(cfg.Output.ResultsDB)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	runner := experiment.NewRunner(cfg, m, composer, handle)
	if cfg.Output.Progress && isTerminal(os.Stderr) {
		bar := ui.NewProgress(os.Stderr, 40)
		defer bar.Finish()
		runner.SetPassHandler(bar.StartPass)
		runner.SetProgressHandler(bar.Update)
	}

	writer := report.NewWriter(cfg, m)
	return runner.RunAll(ctx, variants, items, func(out *experiment.Outcome) error {
		run, err := writer.Write(out)
		if err != nil {
			return err
		}
		if db != nil {
			if _, err := db.Insert(ctx, run.Results, run.Dir.Path); err != nil {
				return fmt.Errorf("export results: %w", err)
			}
		}
		fmt.Fprintln(os.Stderr, ui.Summary(out, run))
		return nil
	})
}

// loadCorpus reads the news items, the dialogs, the demographic whitelist
// and the image directory of cfg.
func loadCorpus(cfg *config.Config) (*prompt.Composer, error) {
	news, err := corpus.LoadNews(cfg.NewsPath())
	if err != nil {
		return nil, err
	}
	dialogs, err := corpus.LoadDialogs(cfg.DialogsPath())
	if err != nil {
		return nil, err
	}

	var whitelist corpus.Whitelist
	if path := cfg.DemographicsPath(); fileutil.Exists(path) {
		whitelist, err = corpus.LoadWhitelist(path)
		if err != nil {
			return nil, err
		}
	}

	logging.Debug("corpus loaded", "items", news.Len(), "images", cfg.ImagesDir())
	return &prompt.Composer{
		News:      news,
		Dialogs:   dialogs,
		Whitelist: whitelist,
		Images:    corpus.NewImages(cfg.ImagesDir()),
		Detail:    cfg.Detail,
	}, nil
}

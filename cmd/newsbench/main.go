package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsbench/internal/config"
	"newsbench/internal/logging"
)

var version = "0.3.0"

// flags shared by every command
var (
	cfgFile    string
	model      string
	maxTokens  int
	samples    int
	debug      bool
	recoverRun bool
	verbose    bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsbench",
		Short: "Measure how language models decide to share news",
		Long: `newsbench presents news items, optionally with their images and a persona,
to a language model and scores each reply as a yes/no sharing decision or a
Likert rating. Progress is checkpointed after every item so an interrupted
run can be recovered without repeating provider calls.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExperiment,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "configuration file (\".yaml\" may be omitted)")
	flags.StringVarP(&model, "model", "m", "", "model id or catalog index, overrides the configuration")
	flags.IntVarP(&maxTokens, "max-tokens", "M", 0, "maximum tokens per completion")
	flags.IntVarP(&samples, "samples", "n", 0, "completions per item")
	flags.BoolVarP(&debug, "debug", "D", false, "use the dry-run provider regardless of the model")
	flags.BoolVarP(&recoverRun, "recover", "r", false, "resume from the checkpoint of an interrupted run")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the configured experiment (the default command)",
			Args:  cobra.NoArgs,
			RunE:  runExperiment,
		},
		newModelsCmd(),
		newStatsCmd(),
		newShowCmd(),
		newInspectCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("newsbench version %s\n", version)
			},
		},
	)
	return rootCmd
}

// loadConfig loads the configuration file, applies the command line
// overrides and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = model
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = maxTokens
	}
	if flags.Changed("samples") {
		cfg.Samples = samples
	}
	cfg.Debug = debug
	cfg.Recover = recoverRun
	cfg.Verbose = verbose

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	logging.Configure(level, logging.Format(cfg.Logging.Format), os.Stderr)
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"newsbench/internal/models"
)

// Load reads the configuration file at path over the defaults, then applies
// environment overrides. An empty path yields the defaults. A path without
// extension also matches "<path>.yaml".
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, err
		}
		if err := loadFromFile(cfg, resolved); err != nil {
			return nil, err
		}
		cfg.Path = resolved
	}

	loadFromEnv(cfg)
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if filepath.Ext(path) == "" {
		for _, ext := range []string{".yaml", ".yml"} {
			if _, err := os.Stat(path + ext); err == nil {
				return path + ext, nil
			}
		}
	}
	return "", fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if model := os.Getenv("NEWSBENCH_MODEL"); model != "" {
		cfg.Model = model
	}
	if n := os.Getenv("NEWSBENCH_SAMPLES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Samples = v
		}
	}
	if dir := os.Getenv("NEWSBENCH_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if url := os.Getenv("OLLAMA_HOST"); url != "" {
		if !strings.Contains(url, "://") {
			url = "http://" + url
		}
		cfg.Providers.Ollama.BaseURL = url
	}
}

// Normalize applies the derived settings: legacy profile dialog names,
// the check_news defaults and the automatic Likert mode.
func (c *Config) Normalize() {
	for i, d := range c.DialogsPre {
		c.DialogsPre[i] = strings.ReplaceAll(d, legacyProfilePrefix, profilePrefix)
	}
	for i := range c.MultiDialogsPre {
		for j, d := range c.MultiDialogsPre[i].Options {
			c.MultiDialogsPre[i].Options[j] = strings.ReplaceAll(d, legacyProfilePrefix, profilePrefix)
		}
	}

	if c.Experiment == ExperimentCheckNews {
		c.Samples = 1
		if len(c.DialogsPre) == 0 {
			c.DialogsPre = StringList{DefaultCheckDialog}
		}
	}

	for _, d := range c.DialogsPost {
		if strings.Contains(d, likertMarker) {
			c.LikertScale = true
			if c.Agreement == nil {
				on := true
				c.Agreement = &on
			}
		}
	}
	if c.Agreement == nil {
		off := false
		c.Agreement = &off
	}
}

// Validate checks the configuration before any provider is contacted.
func (c *Config) Validate() error {
	var errs []error

	if !c.Experiment.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidExperiment, c.Experiment))
	}
	if _, err := models.Lookup(c.Model); err != nil {
		errs = append(errs, err)
	}
	if c.Samples < 1 {
		errs = append(errs, fmt.Errorf("n_returns must be at least 1, got %d", c.Samples))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("max_tokens must be at least 1, got %d", c.MaxTokens))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be in (0, 1], got %g", c.TopP))
	}
	if c.Temperature < 0 {
		errs = append(errs, fmt.Errorf("temperature must not be negative, got %g", c.Temperature))
	}
	if c.NewsAmount < 0 {
		errs = append(errs, fmt.Errorf("news_amount must not be negative, got %d", c.NewsAmount))
	}
	switch c.Detail {
	case "high", "low", "auto":
	default:
		errs = append(errs, fmt.Errorf("detail must be high, low or auto, got %q", c.Detail))
	}
	if len(c.MultiDialogsPre) > 0 && len(c.MultiDemography) > 0 {
		errs = append(errs, ErrMultiConflict)
	}
	if len(c.MultiDialogsPre) > 0 {
		multi := 0
		for _, s := range c.MultiDialogsPre {
			if s.Multi {
				multi++
			}
		}
		if multi != 1 {
			errs = append(errs, fmt.Errorf("%w: found %d", ErrMultiSlots, multi))
		}
	}
	for k, v := range c.MultiDemography {
		if len(v) == 0 {
			errs = append(errs, fmt.Errorf("multi_demography %q has no options", k))
		}
	}
	if c.Output.Checkpoint == "" {
		errs = append(errs, errors.New("output.checkpoint must be set"))
	}
	return errors.Join(errs...)
}

// ConfigError is a fixed configuration validation failure.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrInvalidExperiment ConfigError = "experiment must be one of news_noimage, news_image, both, check_news"
	ErrMultiConflict     ConfigError = "cannot vary both multi_dialogs_pre and multi_demography"
	ErrMultiSlots        ConfigError = "multi_dialogs_pre needs exactly one list of alternatives"
)

func (c *Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Data.Dir, name)
}

// NewsPath returns the path of the news corpus.
func (c *Config) NewsPath() string { return c.dataPath(c.Data.News) }

// DialogsPath returns the path of the dialog store.
func (c *Config) DialogsPath() string { return c.dataPath(c.Data.Dialogs) }

// DemographicsPath returns the path of the demographic whitelist.
func (c *Config) DemographicsPath() string { return c.dataPath(c.Data.Demographics) }

// ImagesDir returns the image directory. It is resolved against the working
// directory, not the data directory.
func (c *Config) ImagesDir() string { return c.Data.Images }

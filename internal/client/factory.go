package client

import (
	"context"
	"fmt"
	"time"

	"newsbench/internal/config"
	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/security"
)

// NewProvider builds the provider serving m. In debug mode every model is
// answered by a dry-run provider and no credentials are read.
func NewProvider(ctx context.Context, cfg *config.Config, m models.Resolved) (Provider, error) {
	if cfg.Debug {
		logging.Debug("creating dry-run provider", "model", m.ID, "replies", len(cfg.DryRun.Replies))
		return NewDryRun(cfg.DryRun.Replies), nil
	}

	logging.Debug("creating provider", "model", m.ID, "family", m.Family, "dialect", m.Dialect)

	sampling := Sampling{
		MaxTokens:         cfg.MaxTokens,
		TopP:              cfg.TopP,
		Temperature:       cfg.Temperature,
		RepetitionPenalty: cfg.RepetitionPenalty,
	}
	retry := RetryPolicy{Delay: cfg.Retry.Delay}

	switch m.Family {
	case models.FamilyNone:
		return NewSynthetic(time.Now().UnixNano()), nil

	case models.FamilyOpenAI:
		p := cfg.Providers.OpenAI
		key, err := loadKey("OpenAI", security.OpenAIKeyEnv, p)
		if err != nil {
			return nil, err
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      key,
			BaseURL:     p.BaseURL,
			Model:       m.ID,
			Dialect:     m.Dialect,
			Sampling:    sampling,
			HTTPTimeout: p.Timeout,
			Retry:       retry,
		})

	case models.FamilyAnthropic:
		p := cfg.Providers.Anthropic
		key, err := loadKey("Anthropic", security.AnthropicKeyEnv, p)
		if err != nil {
			return nil, err
		}
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:      key,
			BaseURL:     p.BaseURL,
			Model:       m.ID,
			Sampling:    sampling,
			HTTPTimeout: p.Timeout,
			Retry:       retry,
		})

	case models.FamilyGemini:
		p := cfg.Providers.Gemini
		key, err := loadKey("Gemini", security.GeminiKeyEnv, p)
		if err != nil {
			return nil, err
		}
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:      key,
			BaseURL:     p.BaseURL,
			Model:       m.ID,
			Sampling:    sampling,
			HTTPTimeout: p.Timeout,
			Retry:       retry,
		})

	case models.FamilyLocal:
		o := cfg.Providers.Ollama
		key, err := security.GetAPIKey(security.OllamaKeyEnv, "", o.APIKey)
		if err != nil {
			return nil, err
		}
		return NewLocalProvider(LocalConfig{
			BaseURL:   o.BaseURL,
			APIKey:    key.Value,
			Model:     m.Model,
			Sampling:  sampling,
			KeepAlive: o.KeepAlive,
		})
	}

	return nil, fmt.Errorf("%w: %s", ErrNoProvider, m.Family)
}

func loadKey(provider string, envVars []string, p config.ProviderConfig) (string, error) {
	loadedKey, err := security.GetAPIKey(envVars, p.KeyFile, p.APIKey)
	if err != nil {
		return "", fmt.Errorf("%s key: %w", provider, err)
	}
	if !loadedKey.IsSet() {
		return "", fmt.Errorf("%s: %w (set %s or write it to %s)", provider, ErrMissingKey, envVars[0], p.KeyFile)
	}

	// Log key source for debugging (without exposing the key)
	logging.Debug("loaded API key", "provider", provider, "source", loadedKey.Source)

	if err := security.ValidateKeyFormat(loadedKey.Value); err != nil {
		return "", fmt.Errorf("invalid %s API key: %w", provider, err)
	}
	return loadedKey.Value, nil
}

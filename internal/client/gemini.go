package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"newsbench/internal/logging"
	"newsbench/internal/prompt"
	"newsbench/internal/security"
)

// maxCandidates is the largest candidate count one request may ask for.
const maxCandidates = 8

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string // optional endpoint override
	Model       string
	Sampling    Sampling
	HTTPTimeout time.Duration
	Retry       RetryPolicy
}

// GeminiProvider generates content through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	retry  RetryPolicy
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	clientConfig := &genai.ClientConfig{
		Backend:    genai.BackendGeminiAPI,
		APIKey:     cfg.APIKey,
		HTTPClient: security.NewHTTPClient(cfg.HTTPTimeout),
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: Ptr(float32(cfg.Sampling.Temperature)),
		TopP:        Ptr(float32(cfg.Sampling.TopP)),
	}
	if cfg.Sampling.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(cfg.Sampling.MaxTokens)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
		config: genConfig,
		retry:  cfg.Retry,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini/" + p.model }

func (p *GeminiProvider) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	contents := geminiContents(req)
	out := make([]string, 0, n)
	for remaining := n; remaining > 0; {
		batch := min(remaining, maxCandidates)
		texts, err := retryOnce(ctx, p.retry, p.Name(), func(ctx context.Context) ([]string, error) {
			return p.generate(ctx, contents, batch)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, texts...)
		remaining -= batch
	}
	return checkCount(p.Name(), out, n)
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, candidates int) ([]string, error) {
	cfg := *p.config
	cfg.CandidateCount = int32(candidates)

	logging.Debug("gemini generate request", "model", p.model, "candidates", candidates)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &cfg)
	if err != nil {
		return nil, wrapGeminiError(err)
	}

	out := make([]string, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		var sb strings.Builder
		if c.Content != nil {
			for _, part := range c.Content.Parts {
				if part != nil && !part.Thought {
					sb.WriteString(part.Text)
				}
			}
		}
		out = append(out, sb.String())
	}
	if len(out) != candidates {
		return nil, fmt.Errorf("%w: got %d candidates, asked for %d", ErrShortCompletion, len(out), candidates)
	}
	return out, nil
}

func geminiContents(req *prompt.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == prompt.RoleAssistant {
			role = genai.RoleModel
		}
		var parts []*genai.Part
		for _, part := range t.Parts {
			switch part.Kind {
			case prompt.PartText:
				if part.Text != "" {
					parts = append(parts, genai.NewPartFromText(part.Text))
				}
			case prompt.PartImage:
				if part.Image != nil {
					parts = append(parts, genai.NewPartFromBytes(part.Image.Data, part.Image.MediaType))
				}
			}
		}
		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, role))
		}
	}
	return contents
}

func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{
			StatusCode: apiErr.Code,
			Message:    fmt.Sprintf("gemini API error (status %d): %s", apiErr.Code, apiErr.Message),
			Err:        err,
		}
	}
	return err
}

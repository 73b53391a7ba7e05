package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
	"newsbench/internal/security"
)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for compatible endpoints
	Model       string
	Dialect     models.Dialect
	Sampling    Sampling
	User        string // end-user tag, default login@host
	HTTPTimeout time.Duration
	Retry       RetryPolicy
}

// OpenAIProvider serves OpenAI chat and legacy completion models. It requests
// all samples of a prompt in one call.
type OpenAIProvider struct {
	client openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingKey)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.Dialect == "" {
		config.Dialect = models.DialectChat
	}
	if config.User == "" {
		config.User = localUser()
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 300 * time.Second
	}

	// Retries are driven by RetryPolicy, not by the SDK.
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(config.HTTPTimeout),
		option.WithHTTPClient(security.NewHTTPClient(0)),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		config: config,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai/" + p.config.Model }

func (p *OpenAIProvider) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	var call func(ctx context.Context) ([]string, error)
	if p.config.Dialect == models.DialectCompletion {
		call = func(ctx context.Context) ([]string, error) { return p.completion(ctx, req, n) }
	} else {
		call = func(ctx context.Context) ([]string, error) { return p.chat(ctx, req, n) }
	}
	out, err := retryOnce(ctx, p.config.Retry, p.Name(), call)
	if err != nil {
		return nil, err
	}
	return checkCount(p.Name(), out, n)
}

func (p *OpenAIProvider) chat(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.config.Model),
		Messages:    chatMessages(req),
		N:           openai.Int(int64(n)),
		TopP:        openai.Float(p.config.Sampling.TopP),
		Temperature: openai.Float(p.config.Sampling.Temperature),
		User:        openai.String(p.config.User),
	}
	if p.config.Sampling.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.config.Sampling.MaxTokens))
	}

	logging.Debug("openai chat request", "model", p.config.Model, "n", n, "turns", len(req.Turns))
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	out := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		out = append(out, c.Message.Content)
	}
	return out, nil
}

func (p *OpenAIProvider) completion(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(p.config.Model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(req.PromptText())},
		N:           openai.Int(int64(n)),
		TopP:        openai.Float(p.config.Sampling.TopP),
		Temperature: openai.Float(p.config.Sampling.Temperature),
		User:        openai.String(p.config.User),
	}
	if p.config.Sampling.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.config.Sampling.MaxTokens))
	}

	logging.Debug("openai completion request", "model", p.config.Model, "n", n)
	resp, err := p.client.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	out := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		out = append(out, c.Text)
	}
	return out, nil
}

// chatMessages converts the turns of req to chat messages. Images are sent
// inline as data URLs.
func chatMessages(req *prompt.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns))
	for _, t := range req.Turns {
		if t.Role == prompt.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Text()))
			continue
		}
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(t.Parts))
		for _, part := range t.Parts {
			switch part.Kind {
			case prompt.PartText:
				parts = append(parts, openai.TextContentPart(part.Text))
			case prompt.PartImage:
				if part.Image == nil {
					continue
				}
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    part.Image.DataURL(),
					Detail: part.Detail,
				}))
			}
		}
		msgs = append(msgs, openai.UserMessage(parts))
	}
	return msgs
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("openai API error (status %d): %s", apiErr.StatusCode, apiErr.Message),
			Err:        err,
		}
	}
	return err
}

// localUser returns login@host.
func localUser() string {
	login := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		login = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return login + "@" + host
}

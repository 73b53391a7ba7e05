package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsbench/internal/logging"
	"newsbench/internal/prompt"
	"newsbench/internal/security"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

// AnthropicConfig holds configuration for the Anthropic messages API.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string // Default: "https://api.anthropic.com"
	Model       string
	Sampling    Sampling
	HTTPTimeout time.Duration
	Retry       RetryPolicy
}

// AnthropicProvider calls the messages API once per sample.
type AnthropicProvider struct {
	config     AnthropicConfig
	httpClient *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingKey)
	}
	if config.BaseURL != "" {
		if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
			return nil, fmt.Errorf("invalid BaseURL: must start with http:// or https://")
		}
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = defaultAnthropicURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Sampling.MaxTokens == 0 {
		config.Sampling.MaxTokens = 20
	}
	if config.Sampling.MaxTokens < 1 {
		return nil, fmt.Errorf("MaxTokens must be positive, got: %d", config.Sampling.MaxTokens)
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 300 * time.Second
	}
	if config.HTTPTimeout < time.Second {
		return nil, fmt.Errorf("HTTPTimeout too short: %v (minimum: 1s)", config.HTTPTimeout)
	}

	return &AnthropicProvider{
		config:     config,
		httpClient: security.NewHTTPClient(config.HTTPTimeout),
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic/" + p.config.Model }

// Complete issues n sequential requests since the API returns a single
// completion per call.
func (p *AnthropicProvider) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	body := anthropicRequest{
		Model:       p.config.Model,
		MaxTokens:   p.config.Sampling.MaxTokens,
		Temperature: p.config.Sampling.Temperature,
		TopP:        p.config.Sampling.TopP,
		Messages:    anthropicMessages(req),
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := retryOnce(ctx, p.config.Retry, p.Name(), func(ctx context.Context) (string, error) {
			return p.doRequest(ctx, &body)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return checkCount(p.Name(), out, n)
}

func (p *AnthropicProvider) doRequest(ctx context.Context, body *anthropicRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.config.BaseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	logging.Debug("anthropic API request", "url", url, "model", p.config.Model)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &HTTPError{Message: fmt.Sprintf("request failed: %v", err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &HTTPError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		logging.Warn("anthropic API error", "status", resp.StatusCode, "body", string(data))
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(data)),
		}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &APIError{StatusCode: resp.StatusCode, Message: "response carries no text block"}
}

// Close releases idle connections.
func (p *AnthropicProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func anthropicMessages(req *prompt.Request) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(req.Turns))
	for _, t := range req.Turns {
		msg := anthropicMessage{Role: string(t.Role)}
		for _, part := range t.Parts {
			switch part.Kind {
			case prompt.PartText:
				// The API rejects empty text blocks.
				if part.Text == "" {
					continue
				}
				msg.Content = append(msg.Content, anthropicBlock{Type: "text", Text: part.Text})
			case prompt.PartImage:
				if part.Image == nil {
					continue
				}
				msg.Content = append(msg.Content, anthropicBlock{
					Type: "image",
					Source: &anthropicSource{
						Type:      "base64",
						MediaType: part.Image.MediaType,
						Data:      part.Image.Base64(),
					},
				})
			}
		}
		if len(msg.Content) > 0 {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

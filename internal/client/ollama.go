package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
)

// PlaceholderReply stands in for samples a local model failed to produce.
const PlaceholderReply = "error"

// LocalConfig holds configuration for a locally served model.
type LocalConfig struct {
	BaseURL     string // Default: "http://localhost:11434"
	APIKey      string // Optional, for remote servers with auth
	Model       models.Model
	Sampling    Sampling
	KeepAlive   time.Duration
	HTTPTimeout time.Duration
}

// LocalProvider runs models on an Ollama server. The model is loaded on the
// first request and kept resident for the provider's lifetime.
type LocalProvider struct {
	mu      sync.Mutex
	config  LocalConfig
	baseURL *url.URL
	client  *api.Client
	loaded  bool
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewLocalProvider creates a provider for a local model.
func NewLocalProvider(config LocalConfig) (*LocalProvider, error) {
	if config.Model.Local == nil {
		return nil, fmt.Errorf("model %q is not a local model", config.Model.ID)
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 300 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	// Warn if using unencrypted HTTP to a non-localhost host
	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host",
				"host", host,
				"recommendation", "use HTTPS for remote Ollama servers")
		}
	}

	p := &LocalProvider{config: config, baseURL: baseURL}
	p.client = p.newClient()
	return p, nil
}

func (p *LocalProvider) newClient() *api.Client {
	httpClient := &http.Client{Timeout: p.config.HTTPTimeout}
	if p.config.APIKey != "" {
		httpClient.Transport = &authTransport{
			base:   http.DefaultTransport,
			apiKey: p.config.APIKey,
		}
	}
	return api.NewClient(p.baseURL, httpClient)
}

func (p *LocalProvider) Name() string { return "local/" + p.tag() }

func (p *LocalProvider) tag() string {
	if p.config.Model.Local.Tag != "" {
		return p.config.Model.Local.Tag
	}
	return p.config.Model.ID
}

// Complete splits n into batches no larger than the model's sample ceiling.
// A failed batch triggers one reload of the model and a retry; if that fails
// too, the batch is filled with PlaceholderReply.
func (p *LocalProvider) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: load model: %w", ErrProviderFailed, p.Name(), err)
	}

	out := make([]string, 0, n)
	for _, size := range batchSizes(n, p.config.Model.Local.SampleCeiling) {
		texts, err := p.batch(ctx, req, size)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warn("local generation failed, reloading model", "model", p.tag(), "error", err)
			if rerr := p.reload(ctx); rerr != nil {
				logging.Warn("model reload failed", "model", p.tag(), "error", rerr)
			}
			texts, err = p.batch(ctx, req, size)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Error("local generation failed twice, recording placeholders",
				"model", p.tag(), "samples", size, "error", err)
			texts = placeholders(size)
		}
		out = append(out, texts...)
	}
	return checkCount(p.Name(), out, n)
}

// batchSizes splits n into full batches of ceiling plus a remainder.
func batchSizes(n, ceiling int) []int {
	if n <= 0 {
		return nil
	}
	if ceiling <= 0 || n <= ceiling {
		return []int{n}
	}
	sizes := make([]int, 0, n/ceiling+1)
	for i := 0; i < n/ceiling; i++ {
		sizes = append(sizes, ceiling)
	}
	if rem := n % ceiling; rem > 0 {
		sizes = append(sizes, rem)
	}
	return sizes
}

func placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = PlaceholderReply
	}
	return out
}

// batch produces size samples; the server returns one per request.
func (p *LocalProvider) batch(ctx context.Context, req *prompt.Request, size int) ([]string, error) {
	out := make([]string, 0, size)
	for i := 0; i < size; i++ {
		var (
			text string
			err  error
		)
		if req.Dialect == models.DialectCompletion {
			text, err = p.generate(ctx, req)
		} else {
			text, err = p.chat(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p.clean(text, req))
	}
	return out, nil
}

func (p *LocalProvider) chat(ctx context.Context, req *prompt.Request) (string, error) {
	chatReq := &api.ChatRequest{
		Model:     p.tag(),
		Messages:  localMessages(req),
		Stream:    Ptr(false),
		Options:   p.options(),
		KeepAlive: p.keepAlive(),
	}
	var sb strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	return sb.String(), err
}

func (p *LocalProvider) generate(ctx context.Context, req *prompt.Request) (string, error) {
	genReq := &api.GenerateRequest{
		Model:     p.tag(),
		Prompt:    req.Text,
		Stream:    Ptr(false),
		Options:   p.options(),
		KeepAlive: p.keepAlive(),
	}
	if req.Image != nil {
		genReq.Images = []api.ImageData{req.Image.Data}
	}
	var sb strings.Builder
	err := p.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	return sb.String(), err
}

// clean removes an echoed prompt from a completion.
func (p *LocalProvider) clean(text string, req *prompt.Request) string {
	profile := p.config.Model.Local
	if profile.StripPrompt {
		if pt := req.PromptText(); pt != "" {
			text = strings.Replace(text, pt, "", 1)
		}
	}
	if d := profile.EchoDelimiter; d != "" && strings.Contains(text, d) {
		parts := strings.Split(text, d)
		text = strings.TrimSpace(parts[len(parts)-1])
	}
	return text
}

func (p *LocalProvider) options() map[string]any {
	s := p.config.Sampling
	opts := map[string]any{
		"temperature": s.Temperature,
		"top_p":       s.TopP,
	}
	if s.MaxTokens > 0 {
		opts["num_predict"] = s.MaxTokens
	}
	if s.RepetitionPenalty > 0 {
		opts["repeat_penalty"] = s.RepetitionPenalty
	}
	return opts
}

func (p *LocalProvider) keepAlive() *api.Duration {
	if p.config.KeepAlive <= 0 {
		return nil
	}
	return &api.Duration{Duration: p.config.KeepAlive}
}

// ensureLoaded asks the server to load the model once. An empty generate
// request loads the model without producing output.
func (p *LocalProvider) ensureLoaded(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	start := time.Now()
	err := p.client.Generate(ctx, &api.GenerateRequest{
		Model:     p.tag(),
		Stream:    Ptr(false),
		KeepAlive: p.keepAlive(),
	}, func(api.GenerateResponse) error { return nil })
	if err != nil {
		return err
	}
	p.loaded = true
	logging.Info("local model loaded", "model", p.tag(), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *LocalProvider) unload(ctx context.Context) error {
	return p.client.Generate(ctx, &api.GenerateRequest{
		Model:     p.tag(),
		Stream:    Ptr(false),
		KeepAlive: &api.Duration{Duration: 0},
	}, func(api.GenerateResponse) error { return nil })
}

// reload unloads the model, rebuilds the client and loads the model again.
func (p *LocalProvider) reload(ctx context.Context) error {
	if err := p.unload(ctx); err != nil {
		logging.Debug("model unload failed", "model", p.tag(), "error", err)
	}
	p.client = p.newClient()
	p.loaded = false
	return p.ensureLoaded(ctx)
}

// Close unloads the model when it was loaded.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return nil
	}
	p.loaded = false
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.unload(ctx)
}

// localMessages converts the turns of req. The out-of-band image rides on
// the first user message.
func localMessages(req *prompt.Request) []api.Message {
	msgs := make([]api.Message, 0, len(req.Turns))
	attached := false
	for _, t := range req.Turns {
		msg := api.Message{Role: string(t.Role), Content: t.Text()}
		if t.Role == prompt.RoleUser && req.Image != nil && !attached {
			msg.Images = []api.ImageData{req.Image.Data}
			attached = true
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

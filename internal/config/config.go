package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Experiment selects which passes a run performs.
type Experiment string

const (
	ExperimentNoImage   Experiment = "news_noimage"
	ExperimentImage     Experiment = "news_image"
	ExperimentBoth      Experiment = "both"
	ExperimentCheckNews Experiment = "check_news"
)

// Valid reports whether e names a known experiment.
func (e Experiment) Valid() bool {
	switch e {
	case ExperimentNoImage, ExperimentImage, ExperimentBoth, ExperimentCheckNews:
		return true
	}
	return false
}

// Config is the complete run configuration.
type Config struct {
	Model      string     `yaml:"model"`
	Experiment Experiment `yaml:"experiment"`

	// NewsIDs lists the items to process. When empty, NewsAmount selects a
	// balanced subset, and zero NewsAmount means every item.
	NewsIDs    []string `yaml:"news_ids,omitempty"`
	NewsAmount int      `yaml:"news_amount,omitempty"`

	Samples           int     `yaml:"n_returns"`
	MaxTokens         int     `yaml:"max_tokens"`
	TopP              float64 `yaml:"top_p"`
	Temperature       float64 `yaml:"temperature"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	Detail            string  `yaml:"detail"`

	DialogsPre      StringList          `yaml:"dialogs_pre,omitempty"`
	DialogsPost     StringList          `yaml:"dialogs_post,omitempty"`
	MultiDialogsPre []DialogSlot        `yaml:"multi_dialogs_pre,omitempty"`
	Demographics    map[string]string   `yaml:"demographics,omitempty"`
	MultiDemography map[string][]string `yaml:"multi_demography,omitempty"`

	InfoSource  bool  `yaml:"info_source"`
	InfoMore    bool  `yaml:"info_more"`
	LikertScale bool  `yaml:"likert_scale"`
	Agreement   *bool `yaml:"agreement,omitempty"`

	Data      DataConfig      `yaml:"data"`
	Output    OutputConfig    `yaml:"output"`
	Providers ProvidersConfig `yaml:"providers"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	DryRun    DryRunConfig    `yaml:"dry_run"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Command line switches
	Debug   bool   `yaml:"-"`
	Recover bool   `yaml:"-"`
	Verbose bool   `yaml:"-"`
	Path    string `yaml:"-"`
}

// DataConfig locates the input corpora.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	News         string `yaml:"news"`
	Dialogs      string `yaml:"dialogs"`
	Demographics string `yaml:"demographics"`
	Images       string `yaml:"images"`
}

// OutputConfig locates the run artifacts.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Checkpoint string `yaml:"checkpoint"`
	// ResultsDB is an optional SQLite file receiving every finished run.
	ResultsDB string `yaml:"results_db,omitempty"`
	// Archive lists glob patterns of input files copied into the run directory.
	Archive  []string `yaml:"archive,omitempty"`
	Progress bool     `yaml:"progress"`
}

// ProviderConfig holds credentials and endpoint of a hosted provider.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key,omitempty"`
	KeyFile string        `yaml:"key_file,omitempty"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// OllamaConfig configures the local generation server.
type OllamaConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key,omitempty"`
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// ProvidersConfig groups per-provider settings.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Ollama    OllamaConfig   `yaml:"ollama"`
}

// RetryConfig holds the retry policy of network providers.
type RetryConfig struct {
	Delay time.Duration `yaml:"delay"` // pause before the single retry (default: 120s)
}

// RateLimitConfig throttles provider requests.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 disables throttling
	BurstSize         int `yaml:"burst_size"`
}

// DryRunConfig configures the placeholder provider used in debug mode.
type DryRunConfig struct {
	Replies []string `yaml:"replies,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() *Config {
	return &Config{
		Model:             DefaultModel,
		Samples:           DefaultSamples,
		MaxTokens:         DefaultMaxTokens,
		TopP:              DefaultTopP,
		Temperature:       DefaultTemperature,
		RepetitionPenalty: DefaultRepetitionPenalty,
		Detail:            DefaultDetail,
		Data: DataConfig{
			Dir:          DefaultDataDir,
			News:         DefaultNewsFile,
			Dialogs:      DefaultDialogsFile,
			Demographics: DefaultDemoFile,
			Images:       DefaultImagesDir,
		},
		Output: OutputConfig{
			Dir:        DefaultResultsDir,
			Checkpoint: DefaultCheckpoint,
			Archive:    []string{DefaultArchiveGlob},
			Progress:   true,
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{KeyFile: DefaultOpenAIKeyFile, Timeout: DefaultHTTPTimeout},
			Anthropic: ProviderConfig{KeyFile: DefaultAnthropicKeyFile, Timeout: DefaultHTTPTimeout},
			Gemini:    ProviderConfig{KeyFile: DefaultGeminiKeyFile, Timeout: DefaultHTTPTimeout},
			Ollama:    OllamaConfig{BaseURL: DefaultOllamaURL, KeepAlive: DefaultOllamaKeep},
		},
		Retry: RetryConfig{
			Delay: DefaultRetryDelay,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// UseAgreement reports whether Likert scores carry the agreement value.
func (c *Config) UseAgreement() bool {
	return c.Agreement != nil && *c.Agreement
}

// Multi reports whether the configuration expands into several runs.
func (c *Config) Multi() bool {
	return len(c.MultiDialogsPre) > 0 || len(c.MultiDemography) > 0
}

// Dump renders the configuration as YAML with credentials masked.
func (c *Config) Dump() string {
	cp := *c
	cp.Providers.OpenAI.APIKey = mask(cp.Providers.OpenAI.APIKey)
	cp.Providers.Anthropic.APIKey = mask(cp.Providers.Anthropic.APIKey)
	cp.Providers.Gemini.APIKey = mask(cp.Providers.Gemini.APIKey)
	cp.Providers.Ollama.APIKey = mask(cp.Providers.Ollama.APIKey)
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(data)
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	return "****"
}

// StringList decodes either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: expected a dialog id or a list of ids", node.Line)
}

// DialogSlot is one position of multi_dialogs_pre: either a fixed dialog id
// or a list of alternatives, one per run.
type DialogSlot struct {
	Options []string
	Multi   bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *DialogSlot) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		*s = DialogSlot{Options: []string{id}}
		return nil
	case yaml.SequenceNode:
		var opts []string
		if err := node.Decode(&opts); err != nil {
			return err
		}
		*s = DialogSlot{Options: opts, Multi: true}
		return nil
	}
	return fmt.Errorf("line %d: multi_dialogs_pre entries must be ids or lists of ids", node.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (s DialogSlot) MarshalYAML() (any, error) {
	if s.Multi {
		if s.Options == nil {
			return []string{}, nil
		}
		return s.Options, nil
	}
	if len(s.Options) == 0 {
		return "", nil
	}
	return s.Options[0], nil
}

package security

import (
	"fmt"
	"os"
	"strings"
)

// KeySource represents where an API key was loaded from
type KeySource string

const (
	// KeySourceEnvironment indicates the key was loaded from environment variables
	KeySourceEnvironment KeySource = "environment"
	// KeySourceFile indicates the key was read from a key file
	KeySourceFile KeySource = "file"
	// KeySourceConfig indicates the key was loaded from config file
	KeySourceConfig KeySource = "config"
	// KeySourceNotSet indicates no key was found
	KeySourceNotSet KeySource = "not_set"
)

// LoadedKey represents a loaded API key with metadata
type LoadedKey struct {
	Value  string    // The actual API key
	Source KeySource // Where the key was loaded from
}

// String returns a safe string representation (hides the key value)
func (k *LoadedKey) String() string {
	if k == nil || k.Value == "" {
		return "LoadedKey{Source: not_set}"
	}
	return fmt.Sprintf("LoadedKey{Source: %s, Value: %s}", k.Source, MaskKey(k.Value))
}

// IsSet returns true if the key has a value
func (k *LoadedKey) IsSet() bool {
	return k != nil && k.Value != ""
}

// GetAPIKey loads an API key from multiple sources in priority order:
// 1. Environment variables (highest priority)
// 2. Key file (a single line holding the key)
// 3. Config file value
//
// A missing key file is skipped silently; an unreadable one is an error.
func GetAPIKey(envVarNames []string, keyFile string, configValue string) (*LoadedKey, error) {
	for _, envVar := range envVarNames {
		if value := os.Getenv(envVar); value != "" {
			return &LoadedKey{Value: value, Source: KeySourceEnvironment}, nil
		}
	}

	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		switch {
		case err == nil:
			if value := strings.TrimSpace(string(data)); value != "" {
				return &LoadedKey{Value: value, Source: KeySourceFile}, nil
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read key file %s: %w", keyFile, err)
		}
	}

	if configValue != "" {
		return &LoadedKey{Value: configValue, Source: KeySourceConfig}, nil
	}

	return &LoadedKey{Source: KeySourceNotSet}, nil
}

// OpenAIKeyEnv lists the environment variables checked for the OpenAI key.
var OpenAIKeyEnv = []string{"NEWSBENCH_OPENAI_KEY", "OPENAI_API_KEY"}

// AnthropicKeyEnv lists the environment variables checked for the Anthropic key.
var AnthropicKeyEnv = []string{"NEWSBENCH_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"}

// GeminiKeyEnv lists the environment variables checked for the Gemini key.
var GeminiKeyEnv = []string{"NEWSBENCH_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

// OllamaKeyEnv lists the environment variables checked for a remote Ollama key.
var OllamaKeyEnv = []string{"NEWSBENCH_OLLAMA_KEY", "OLLAMA_API_KEY"}

// MaskKey masks an API key for safe logging/display
// Shows first 4 and last 4 characters with asterisks in between
//
// Example: "sk-1234567890abcdef" -> "sk-1***********cdef"
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}

	prefix := key[:4]
	suffix := key[len(key)-4:]
	middle := strings.Repeat("*", len(key)-8)

	return prefix + middle + suffix
}

// ValidateKeyFormat performs basic validation on API key format
// This is a sanity check, not comprehensive validation
func ValidateKeyFormat(key string) error {
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if len(key) < 10 {
		return fmt.Errorf("API key too short (expected at least 10 characters, got %d)", len(key))
	}

	lowerKey := strings.ToLower(key)
	placeholderValues := []string{
		"your-api-key",
		"your_api_key",
		"sk-xxxx",
		"<insert-key>",
	}

	for _, placeholder := range placeholderValues {
		if strings.Contains(lowerKey, placeholder) {
			return fmt.Errorf("API key appears to be a placeholder: %s", placeholder)
		}
	}

	return nil
}

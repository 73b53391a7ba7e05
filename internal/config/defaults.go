package config

import "time"

// Default configuration values.
const (
	DefaultModel             = "no-model"
	DefaultSamples           = 1
	DefaultMaxTokens         = 20
	DefaultTopP              = 1.0
	DefaultTemperature       = 0.3
	DefaultRepetitionPenalty = 1.1
	DefaultDetail            = "high"

	DefaultDataDir      = "data"
	DefaultNewsFile     = "news.json"
	DefaultDialogsFile  = "dialogs.json"
	DefaultDemoFile     = "demographics.json"
	DefaultImagesDir    = "imgs"
	DefaultResultsDir   = "res"
	DefaultCheckpoint   = "data/.back.json"
	DefaultArchiveGlob  = "data/*.json"
	DefaultCheckDialog  = "check_text"
	DefaultOllamaURL    = "http://localhost:11434"
	DefaultOllamaKeep   = 30 * time.Minute
	DefaultRetryDelay   = 120 * time.Second
	DefaultHTTPTimeout  = 300 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	legacyProfilePrefix = "profile_"
	profilePrefix       = "p_"
	likertMarker        = "likert"
)

// Default key files, relative to the working directory.
const (
	DefaultOpenAIKeyFile    = "data/.key.txt"
	DefaultAnthropicKeyFile = "data/.anth.txt"
	DefaultGeminiKeyFile    = "data/.gemini.txt"
)

// Package config provides the configuration schema, loader, and transliterator
// registry for the phonomatch intent server.
package config

import "time"

// LogLevel controls log verbosity for the phonomatch server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used for output.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Defaults applied by [ApplyDefaults] to fields left empty.
const (
	DefaultListenAddr    = ":8080"
	DefaultBudget        = 2.0
	DefaultThreshold     = 0.99
	DefaultMaxParamWords = 8
	DefaultActionTimeout = 5 * time.Second
)

// Config is the root configuration structure for phonomatch.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	G2P      G2PConfig      `yaml:"g2p"`
	Matching MatchingConfig `yaml:"matching"`

	// Intents lists intent grammar files. Entries may be glob patterns and
	// are resolved relative to the directory of the config file.
	Intents []string `yaml:"intents"`

	// Actions routes recognised intents to webhooks.
	Actions []ActionConfig `yaml:"actions"`

	// BaseDir is the directory relative paths are resolved against. [Load]
	// sets it to the directory of the config file.
	BaseDir string `yaml:"-"`
}

// ServerConfig holds network and logging settings for the phonomatch server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output. Default: text.
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// G2PConfig selects how text is transliterated to phonemes.
type G2PConfig struct {
	// Provider is the primary transliterator.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary transliterator fails or
	// its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// WordProcessing transliterates every word on its own instead of whole
	// sentences.
	WordProcessing bool `yaml:"word_processing"`

	// CachePath is the SQLite database memoising transliterations. Caching
	// is disabled when empty.
	CachePath string `yaml:"cache_path"`
}

// ProviderEntry is the configuration block of one transliterator.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered transliterator (e.g., "lexicon", "espeak").
	Name string `yaml:"name"`

	// Language is the language tag passed to the transliterator
	// (e.g., "fra-Latn"). Providers that do not need one ignore it.
	Language string `yaml:"language"`

	// Options holds provider-specific values such as a lexicon path or an
	// executable name.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] if it is a string, and "" otherwise.
func (e ProviderEntry) StringOption(key string) string {
	if e.Options == nil {
		return ""
	}
	s, _ := e.Options[key].(string)
	return s
}

// MatchingConfig holds the defaults used when matching utterances.
type MatchingConfig struct {
	// Budget is the error budget given to each match unless an intent sets
	// its own.
	Budget float64 `yaml:"budget"`

	// Threshold is the confusion score two phonemes must exceed to count as
	// equal.
	Threshold float64 `yaml:"threshold"`

	// MaxParamWords bounds how many words a parameter may capture when
	// another phrase follows it.
	MaxParamWords int `yaml:"max_param_words"`

	// IncludeOptionals reports matched optional phrases in results.
	IncludeOptionals bool `yaml:"include_optionals"`
}

// ActionConfig sends recognitions of one intent to a webhook.
type ActionConfig struct {
	// Intent is the name of the intent that triggers the action.
	Intent string `yaml:"intent"`

	// Webhook is the http(s) URL the recognition is POSTed to as JSON.
	Webhook string `yaml:"webhook"`

	// Headers are added to every request (e.g., an Authorization header).
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`
}

// ApplyDefaults fills empty fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Matching.Budget == 0 {
		cfg.Matching.Budget = DefaultBudget
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = DefaultThreshold
	}
	if cfg.Matching.MaxParamWords == 0 {
		cfg.Matching.MaxParamWords = DefaultMaxParamWords
	}
	for i := range cfg.Actions {
		if cfg.Actions[i].Timeout == 0 {
			cfg.Actions[i].Timeout = DefaultActionTimeout
		}
	}
}

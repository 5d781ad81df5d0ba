package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the transliterators that ship with phonomatch.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"identity", "lexicon", "espeak"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// Relative paths inside the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Relative paths are resolved against the working directory.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Transliteration
	if cfg.G2P.Provider.Name == "" {
		errs = append(errs, errors.New("g2p.provider.name is required"))
	}
	validateProvider("g2p.provider", cfg.G2P.Provider, &errs)
	for i, fb := range cfg.G2P.Fallbacks {
		prefix := fmt.Sprintf("g2p.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProvider(prefix, fb, &errs)
	}

	// Matching
	if cfg.Matching.Budget < 0 {
		errs = append(errs, fmt.Errorf("matching.budget %.2f must not be negative", cfg.Matching.Budget))
	}
	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("matching.threshold %.2f is out of range [0, 1)", cfg.Matching.Threshold))
	}
	if cfg.Matching.MaxParamWords < 0 {
		errs = append(errs, fmt.Errorf("matching.max_param_words %d must not be negative", cfg.Matching.MaxParamWords))
	}

	// Intents
	if len(cfg.Intents) == 0 {
		slog.Warn("no intents configured; every utterance will go unrecognised")
	}
	for i, p := range cfg.Intents {
		if p == "" {
			errs = append(errs, fmt.Errorf("intents[%d] is empty", i))
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("intents[%d] %q is not a valid pattern: %w", i, p, err))
		}
	}

	// Actions
	for i, a := range cfg.Actions {
		prefix := fmt.Sprintf("actions[%d]", i)
		if a.Intent == "" {
			errs = append(errs, fmt.Errorf("%s.intent is required", prefix))
		}
		if a.Webhook == "" {
			errs = append(errs, fmt.Errorf("%s.webhook is required", prefix))
		} else if u, err := url.Parse(a.Webhook); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s.webhook %q must be an absolute http or https URL", prefix, a.Webhook))
		}
		if a.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, a.Timeout))
		}
	}

	return errors.Join(errs...)
}

// validateProvider checks the options a built-in transliterator needs and
// logs a warning if the name is not one of [ValidProviderNames].
func validateProvider(prefix string, e ProviderEntry, errs *[]error) {
	switch e.Name {
	case "":
		return
	case "lexicon":
		if e.StringOption("path") == "" {
			*errs = append(*errs, fmt.Errorf("%s: lexicon requires options.path", prefix))
		}
	case "espeak":
		if e.Language == "" {
			*errs = append(*errs, fmt.Errorf("%s: espeak requires a language", prefix))
		}
	}
	if !slices.Contains(ValidProviderNames, e.Name) {
		slog.Warn("unknown transliterator name; may be a typo or a custom registration",
			"field", prefix,
			"name", e.Name,
			"known", ValidProviderNames,
		)
	}
}

// ResolvePath returns p unchanged if it is absolute, and joined to
// cfg.BaseDir otherwise.
func (cfg *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || cfg.BaseDir == "" {
		return p
	}
	return filepath.Join(cfg.BaseDir, p)
}

// IntentFiles expands the intent patterns into a sorted, de-duplicated list
// of files. A pattern without glob characters must name an existing file.
func (cfg *Config) IntentFiles() ([]string, error) {
	var files []string
	for _, p := range cfg.Intents {
		p = cfg.ResolvePath(p)
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("config: intents %q: %w", p, err)
		}
		if len(matches) == 0 {
			if strings.ContainsAny(p, "*?[") {
				slog.Warn("config: intent pattern matches no files", "pattern", p)
				continue
			}
			if _, err := os.Stat(p); err != nil {
				return nil, fmt.Errorf("config: intents %q: %w", p, err)
			}
			matches = []string{p}
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

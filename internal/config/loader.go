package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram"},
	"llm": {"openai"},
	"tts": {"deepgram"},
}

// Environment variables consulted by [ApplyEnv].
const (
	EnvDeepgramAPIKey = "DEEPGRAM_API_KEY"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overlays applied. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overlays,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills provider API keys from the environment when the file left
// them empty. Keys in the file win, so secrets can still be committed to a
// local dev config without the environment overriding them.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDeepgramAPIKey); v != "" {
		if cfg.Providers.STT.APIKey == "" {
			cfg.Providers.STT.APIKey = v
		}
		if cfg.Providers.TTS.APIKey == "" {
			cfg.Providers.TTS.APIKey = v
		}
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" && cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}
	if p := cfg.Server.WebhookPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("server.webhook_path %q must start with /", p))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// The voice pipeline needs all three stages.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}

	// Session tuning ranges.
	if t := cfg.Session.EOTThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("session.eot_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Session.EOTTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("session.eot_timeout_ms %d must not be negative", cfg.Session.EOTTimeoutMs))
	}
	if cfg.Session.BargeInDebounceMs < 0 {
		errs = append(errs, fmt.Errorf("session.barge_in_debounce_ms %d must not be negative", cfg.Session.BargeInDebounceMs))
	}
	if cfg.Session.BargeInMinChars < 0 {
		errs = append(errs, fmt.Errorf("session.barge_in_min_chars %d must not be negative", cfg.Session.BargeInMinChars))
	}
	if sr := cfg.Session.SampleRate; sr != 0 && sr != 8000 && sr != 16000 && sr != 24000 && sr != 48000 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d is not a supported rate (8000, 16000, 24000, 48000)", sr))
	}

	// Agent availability warnings.
	if cfg.Agent.Instructions == "" {
		slog.Warn("agent.instructions is empty; the model will answer without a persona")
	}
	if cfg.Agent.ReservationDeskURL == "" {
		slog.Warn("agent.reservation_desk_url is empty; reservation tools are disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

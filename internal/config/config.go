// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Lotus Voice service.
package config

// LogLevel controls log verbosity for the voice server.
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

// Config is the root configuration structure for the voice service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds network and logging settings for the voice server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// WebhookPath is the HTTP path answering Twilio's incoming-call webhook.
	// Empty uses the default "/incoming-call".
	WebhookPath string `yaml:"webhook_path"`

	// TLS configures TLS for the server. When nil, the server runs plain
	// HTTP; Twilio then needs a TLS-terminating proxy in front.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation serves each pipeline
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Usually left
	// empty in the file and supplied via environment (see ApplyEnv).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-5-nano",
	// "flux-general-en", "aura-2-thalia-en").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig describes the conversational persona answering the phone.
type AgentConfig struct {
	// Greeting is spoken as soon as the call connects.
	Greeting string `yaml:"greeting"`

	// Instructions is the system prompt applied to every model response.
	Instructions string `yaml:"instructions"`

	// ReservationDeskURL is the base URL of the reservation desk service
	// backing the agent's tools. Empty disables tools.
	ReservationDeskURL string `yaml:"reservation_desk_url"`
}

// SessionConfig tunes the per-call pipeline. Zero values use the session
// package defaults.
type SessionConfig struct {
	// SampleRate is the internal PCM rate in Hz (default 16000).
	SampleRate int `yaml:"sample_rate"`

	// EOTThreshold is the STT end-of-turn confidence threshold in (0, 1].
	EOTThreshold float64 `yaml:"eot_threshold"`

	// EOTTimeoutMs is the STT end-of-turn silence timeout in milliseconds.
	EOTTimeoutMs int `yaml:"eot_timeout_ms"`

	// BargeInDebounceMs suppresses repeat interrupts within this window
	// (default 400).
	BargeInDebounceMs int `yaml:"barge_in_debounce_ms"`

	// BargeInMinChars is the minimum non-whitespace transcript length of an
	// interim update that counts as an interruption (default 4).
	BargeInMinChars int `yaml:"barge_in_min_chars"`
}

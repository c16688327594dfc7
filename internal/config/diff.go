package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes (log level, agent persona, session tuning) take
// effect without a restart; provider changes are only reported so the caller
// can warn that a restart is needed.
type ConfigDiff struct {
	// LogLevelChanged is set when server.log_level changed; NewLogLevel
	// carries the new value.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged is set when the greeting, instructions, or reservation
	// desk URL changed. Applies to calls started after the reload.
	AgentChanged bool

	// SessionChanged is set when any session tuning value changed. Applies
	// to calls started after the reload.
	SessionChanged bool

	// ProvidersChanged is set when a provider entry changed. Providers are
	// constructed at startup, so this requires a restart.
	ProvidersChanged bool
}

// HotReloadable reports whether the diff contains any change that takes
// effect without restarting the server.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.AgentChanged || d.SessionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent != new.Agent {
		d.AgentChanged = true
	}
	if old.Session != new.Session {
		d.SessionChanged = true
	}

	if !providerEntryEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEntryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = true
	}

	return d
}

// providerEntryEqual compares entries field by field; Options maps are
// compared shallowly by length and top-level values.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		if bv, ok := b.Options[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

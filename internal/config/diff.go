package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakePhrasesChanged is true when the wake phrase list or the phonetic
	// matching settings changed.
	WakePhrasesChanged bool
	NewWakePhrases     []string

	ExitPhrasesChanged bool
	NewExitPhrases     []string

	AcknowledgementChanged bool
	NewAcknowledgement     string

	// RestartRequired lists sections that changed but only take effect after
	// a restart (providers, storage, listen address).
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WakePhrasesChanged || d.ExitPhrasesChanged || d.AcknowledgementChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; everything
// else is reported in RestartRequired.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	if !slices.Equal(oa.WakePhrases, na.WakePhrases) ||
		oa.PhoneticWake != na.PhoneticWake ||
		oa.PhoneticThreshold != na.PhoneticThreshold {
		d.WakePhrasesChanged = true
		d.NewWakePhrases = slices.Clone(na.WakePhrases)
	}
	if !slices.Equal(oa.ExitPhrases, na.ExitPhrases) {
		d.ExitPhrasesChanged = true
		d.NewExitPhrases = slices.Clone(na.ExitPhrases)
	}
	if oa.Acknowledgement != na.Acknowledgement {
		d.AcknowledgementChanged = true
		d.NewAcknowledgement = na.Acknowledgement
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}

	return d
}

// providersEqual compares the identifying fields of every provider entry.
// Options maps are ignored.
func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) &&
		entryEqual(a.TTS, b.TTS) && entryEqual(a.Audio, b.Audio)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.Model != b.Model || a.BaseURL != b.BaseURL || a.APIKey != b.APIKey {
		return false
	}
	return slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}

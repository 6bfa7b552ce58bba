package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"whisper", "openai"},
	"tts":   {"coqui", "openai", "console"},
	"audio": {"command", "none"},
}

// Defaults applied by [ApplyDefaults].
var (
	DefaultWakePhrases     = []string{"hey assistant", "jarvis", "okay assistant"}
	DefaultExitPhrases     = []string{"goodbye", "exit", "quit", "stop listening", "shut down"}
	DefaultAcknowledgement = "Yes, I'm listening."
	DefaultPassphrase      = "My voice is my password"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. ${VAR} references are expanded from the environment
// before decoding, so secrets can live in a .env file instead of the YAML.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// running without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogMaxSizeMB <= 0 {
		s.LogMaxSizeMB = 10
	}
	if s.LogMaxBackups <= 0 {
		s.LogMaxBackups = 5
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = 5
	}
	if s.CORSOrigins == nil {
		s.CORSOrigins = []string{"http://localhost:3000"}
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = "ollama"
		if p.LLM.Model == "" {
			p.LLM.Model = "llama3.2:3b"
		}
	}
	if p.STT.Name == "" {
		p.STT.Name = "whisper"
		if p.STT.BaseURL == "" {
			p.STT.BaseURL = "http://localhost:8081"
		}
	}
	if p.TTS.Name == "" {
		p.TTS.Name = "console"
	}
	if p.Audio.Name == "" {
		p.Audio.Name = "command"
	}

	a := &cfg.Assistant
	if a.Name == "" {
		a.Name = "JARVIS"
	}
	if a.Language == "" {
		a.Language = "en"
	}
	if len(a.WakePhrases) == 0 {
		a.WakePhrases = slices.Clone(DefaultWakePhrases)
	}
	if len(a.ExitPhrases) == 0 {
		a.ExitPhrases = slices.Clone(DefaultExitPhrases)
	}
	if a.Acknowledgement == "" {
		a.Acknowledgement = DefaultAcknowledgement
	}
	if a.WakeWindow <= 0 {
		a.WakeWindow = 2 * time.Second
	}
	if a.CommandWindow <= 0 {
		a.CommandWindow = 4 * time.Second
	}
	if a.ErrorBackoff <= 0 {
		a.ErrorBackoff = 5 * time.Second
	}
	if a.PhoneticThreshold <= 0 {
		a.PhoneticThreshold = 0.85
	}
	if a.HistorySize <= 0 {
		a.HistorySize = 10
	}

	i := &cfg.Intent
	if i.CacheSize <= 0 {
		i.CacheSize = 100
	}
	if i.ClassifierTimeout <= 0 {
		i.ClassifierTimeout = 5 * time.Second
	}

	sec := &cfg.Security
	if sec.SessionTimeout <= 0 {
		sec.SessionTimeout = 60 * time.Minute
	}
	if sec.ThresholdRatio <= 0 {
		sec.ThresholdRatio = 0.5
	}
	if sec.Passphrase == "" {
		sec.Passphrase = DefaultPassphrase
	}
	if sec.SampleDuration <= 0 {
		sec.SampleDuration = 4 * time.Second
	}

	st := &cfg.Storage
	if st.Driver == "" {
		st.Driver = StorageSQLite
	}
	if st.Path == "" {
		st.Path = "jarvis.db"
	}

	t := &cfg.Timers
	if t.BeepCount <= 0 {
		t.BeepCount = 3
	}
	if t.BeepFrequency <= 0 {
		t.BeepFrequency = 880
	}
	if t.BeepDuration <= 0 {
		t.BeepDuration = 200 * time.Millisecond
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
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests_per_second %.2f must not be negative", cfg.Server.RateLimit.RequestsPerSecond))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderEntry("llm", cfg.Providers.LLM)
	validateProviderEntry("stt", cfg.Providers.STT)
	validateProviderEntry("tts", cfg.Providers.TTS)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Assistant
	a := cfg.Assistant
	if len(a.WakePhrases) == 0 {
		errs = append(errs, errors.New("assistant.wake_phrases must not be empty"))
	}
	for i, p := range a.WakePhrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("assistant.wake_phrases[%d] is empty", i))
		}
	}
	for i, p := range a.ExitPhrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("assistant.exit_phrases[%d] is empty", i))
		}
	}
	if a.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("assistant.phonetic_threshold %.2f is out of range (0, 1]", a.PhoneticThreshold))
	}
	if a.Voice.SpeedFactor != 0 && (a.Voice.SpeedFactor < 0.5 || a.Voice.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("assistant.voice.speed_factor %.2f is out of range [0.5, 2.0]", a.Voice.SpeedFactor))
	}

	// Security
	if r := cfg.Security.ThresholdRatio; r < 0 || r > 2 {
		errs = append(errs, fmt.Errorf("security.threshold_ratio %.2f is out of range (0, 2]", r))
	}
	if len(strings.Fields(cfg.Security.Passphrase)) < 3 && cfg.Security.Passphrase != "" {
		errs = append(errs, fmt.Errorf("security.passphrase %q must have at least 3 words", cfg.Security.Passphrase))
	}

	// Storage
	st := cfg.Storage
	if st.Driver != "" && !st.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: sqlite, postgres, memory", st.Driver))
	}
	if st.Driver == StoragePostgres && st.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.driver is postgres"))
	}
	if cfg.Intent.PersistCache && st.Driver == StorageMemory {
		slog.Warn("intent.persist_cache is set but storage.driver is memory; cached intents will not survive a restart")
	}

	// Timers
	if cfg.Timers.BeepCount > 10 {
		errs = append(errs, fmt.Errorf("timers.beep_count %d is out of range [1, 10]", cfg.Timers.BeepCount))
	}

	return errors.Join(errs...)
}

// validateProviderEntry checks an entry and its fallbacks.
func validateProviderEntry(kind string, e ProviderEntry) {
	validateProviderName(kind, e.Name)
	for _, fb := range e.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
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
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// decodeBytes is shared by the watcher so it parses exactly what it hashed.
func decodeBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

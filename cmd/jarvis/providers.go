package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/audio/command"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/jarvis/pkg/provider/llm/openai"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	oaistt "github.com/MrWong99/jarvis/pkg/provider/stt/openai"
	"github.com/MrWong99/jarvis/pkg/provider/stt/whisper"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/tts/coqui"
	oaitts "github.com/MrWong99/jarvis/pkg/provider/tts/openai"
)

// Provider names that select "no provider" rather than a registered factory.
const (
	ttsConsole = "console"
	audioNone  = "none"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Everything except openai goes through any-llm-go. ollama is a local
	// server; it uses BaseURL for the address, not an API key.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization", ""); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rms := entry.OptionFloat("silence_threshold", 0); rms > 0 {
			opts = append(opts, whisper.WithSilenceThreshold(rms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if rms := entry.OptionFloat("silence_threshold", 0); rms > 0 {
			opts = append(opts, oaistt.WithSilenceThreshold(rms))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptionString("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("command", func(entry config.ProviderEntry) (config.AudioDevices, error) {
		var recOpts, playOpts []command.Option
		if argv := entry.OptionStrings("record_command"); len(argv) > 0 {
			recOpts = append(recOpts, command.WithCommand(argv...))
		}
		if argv := entry.OptionStrings("play_command"); len(argv) > 0 {
			playOpts = append(playOpts, command.WithCommand(argv...))
		}
		return config.AudioDevices{
			Recorder: command.NewRecorder(recOpts...),
			Player:   command.NewPlayer(playOpts...),
		}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// named pairs a provider with the name used in logs and breaker states.
type named[P any] struct {
	name string
	p    P
}

// createChain instantiates entry and its fallbacks in order. A primary that
// is not registered yields an empty chain; unregistered fallbacks are skipped.
func createChain[P any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (P, error)) ([]named[P], error) {
	if entry.Name == "" {
		return nil, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Debug("provider not implemented, skipping", "kind", kind, "name", entry.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	chain := []named[P]{{name: entry.Name, p: p}}
	slog.Info("provider created", "kind", kind, "name", entry.Name)

	for _, fb := range entry.Fallbacks {
		p, err := create(fb)
		if err != nil {
			slog.Warn("fallback provider unavailable", "kind", kind, "name", fb.Name, "err", err)
			continue
		}
		chain = append(chain, named[P]{name: fb.Name, p: p})
		slog.Info("fallback provider created", "kind", kind, "name", fb.Name)
	}
	return chain, nil
}

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit breaker", "name", name, "from", from, "to", to)
		},
	}}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Entries with fallbacks are wrapped in a resilience fallback group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	llms, err := createChain("llm", cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	if len(llms) == 1 {
		ps.LLM = llms[0].p
	} else if len(llms) > 1 {
		fb := resilience.NewLLMFallback(llms[0].p, llms[0].name, fallbackConfig())
		for _, n := range llms[1:] {
			fb.AddFallback(n.name, n.p)
		}
		ps.LLM = fb
	}

	stts, err := createChain("stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if len(stts) == 1 {
		ps.STT = stts[0].p
	} else if len(stts) > 1 {
		fb := resilience.NewSTTFallback(stts[0].p, stts[0].name, fallbackConfig())
		for _, n := range stts[1:] {
			fb.AddFallback(n.name, n.p)
		}
		ps.STT = fb
	}

	if cfg.Providers.TTS.Name != ttsConsole {
		ttss, err := createChain("tts", cfg.Providers.TTS, reg.CreateTTS)
		if err != nil {
			return nil, err
		}
		if len(ttss) == 1 {
			ps.TTS = ttss[0].p
		} else if len(ttss) > 1 {
			fb := resilience.NewTTSFallback(ttss[0].p, ttss[0].name, fallbackConfig())
			for _, n := range ttss[1:] {
				fb.AddFallback(n.name, n.p)
			}
			ps.TTS = fb
		}
	}

	if name := cfg.Providers.Audio.Name; name != "" && name != audioNone {
		devices, err := reg.CreateAudio(cfg.Providers.Audio)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not implemented, skipping", "kind", "audio", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		} else {
			ps.Audio = devices
			slog.Info("provider created", "kind", "audio", "name", name)
		}
	}

	return ps, nil
}

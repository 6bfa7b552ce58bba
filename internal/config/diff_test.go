package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/jarvis/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.Changed() {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_Phrases(t *testing.T) {
	t.Parallel()

	t.Run("wake phrases", func(t *testing.T) {
		old, new := config.Default(), config.Default()
		new.Assistant.WakePhrases = []string{"computer"}
		d := config.Diff(old, new)
		if !d.WakePhrasesChanged || !slices.Equal(d.NewWakePhrases, []string{"computer"}) {
			t.Errorf("unexpected diff: %+v", d)
		}
		if d.ExitPhrasesChanged {
			t.Error("exit phrases did not change")
		}
	})

	t.Run("phonetic toggle counts as wake change", func(t *testing.T) {
		old, new := config.Default(), config.Default()
		new.Assistant.PhoneticWake = true
		if d := config.Diff(old, new); !d.WakePhrasesChanged {
			t.Error("expected WakePhrasesChanged for phonetic toggle")
		}
	})

	t.Run("exit phrases", func(t *testing.T) {
		old, new := config.Default(), config.Default()
		new.Assistant.ExitPhrases = []string{"bye"}
		d := config.Diff(old, new)
		if !d.ExitPhrasesChanged || d.NewExitPhrases[0] != "bye" {
			t.Errorf("unexpected diff: %+v", d)
		}
	})

	t.Run("acknowledgement", func(t *testing.T) {
		old, new := config.Default(), config.Default()
		new.Assistant.Acknowledgement = "At your service."
		d := config.Diff(old, new)
		if !d.AcknowledgementChanged || d.NewAcknowledgement != "At your service." {
			t.Errorf("unexpected diff: %+v", d)
		}
	})
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.ListenAddr = ":9090"
	new.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "openai"}}
	new.Storage.Driver = config.StorageMemory

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "providers", "storage"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Changed() {
		t.Error("restart-only changes must not count as hot-reloadable")
	}
}

package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// ---- test helpers ----

// testWAV returns a short 16 kHz mono WAV body with a recognisable payload.
func testWAV() ([]byte, []byte) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00}
	return audio.EncodeWAV(audio.Clip{Data: pcm, SampleRate: 16000, Channels: 1}), pcm
}

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q", p.serverURL)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want standard", p.apiMode)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("options", func(t *testing.T) {
		p := mustNew(t, "http://x", WithLanguage("de"), WithTimeout(3*time.Second), WithAPIMode(APIModeXTTS))
		if p.language != "de" || p.httpClient.Timeout != 3*time.Second || p.apiMode != APIModeXTTS {
			t.Errorf("options not applied: %+v", p)
		}
	})

	t.Run("empty url", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty serverURL")
		}
	})
}

// ---- Synthesize ----

func TestSynthesize_StandardAPI(t *testing.T) {
	t.Parallel()
	wav, pcm := testWAV()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("text") != "Timer finished: tea" {
			t.Errorf("text = %q", q.Get("text"))
		}
		if q.Get("speaker_id") != "p225" {
			t.Errorf("speaker_id = %q", q.Get("speaker_id"))
		}
		if q.Get("language_id") != "en" {
			t.Errorf("language_id = %q", q.Get("language_id"))
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	clip, err := p.Synthesize(context.Background(), "  Timer finished: tea ", tts.Voice{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != string(pcm) {
		t.Errorf("pcm = %v, want %v", clip.Data, pcm)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %d/%d, want 16000/1", clip.SampleRate, clip.Channels)
	}
}

func TestSynthesize_XTTSAPI(t *testing.T) {
	t.Parallel()
	wav, _ := testWAV()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != xttsEndpoint {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		var body xttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Goodbye!" || body.SpeakerWav != "jarvis.wav" || body.Language != "en" {
			t.Errorf("unexpected body: %+v", body)
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	clip, err := p.Synthesize(context.Background(), "Goodbye!", tts.Voice{ID: "jarvis.wav"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Empty() {
		t.Error("expected audio")
	}
}

func TestSynthesize_XTTSRequiresVoice(t *testing.T) {
	t.Parallel()
	p := mustNew(t, "http://127.0.0.1:1", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(context.Background(), "hello", tts.Voice{}); err == nil {
		t.Fatal("expected error without speaker reference")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p := mustNew(t, "http://127.0.0.1:1")
	clip, err := p.Synthesize(context.Background(), "   ", tts.Voice{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !clip.Empty() {
		t.Error("expected empty clip")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), "hello", tts.Voice{}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestSynthesize_InvalidWAV(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a wav"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), "hello", tts.Voice{}); err == nil {
		t.Fatal("expected error for invalid WAV body")
	}
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", WithModel("gpt-4o-mini-tts"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("default voice", func(t *testing.T) {
		params := p.buildParams("hello", tts.Voice{})
		if params.Voice != defaultVoice {
			t.Errorf("voice = %q, want %q", params.Voice, defaultVoice)
		}
		if params.Model != "gpt-4o-mini-tts" {
			t.Errorf("model = %q", params.Model)
		}
		if params.Speed.Valid() {
			t.Error("speed should be unset at 1.0")
		}
	})

	t.Run("speed", func(t *testing.T) {
		params := p.buildParams("hello", tts.Voice{ID: "onyx", SpeedFactor: 1.5})
		if params.Voice != "onyx" {
			t.Errorf("voice = %q", params.Voice)
		}
		if !params.Speed.Valid() || params.Speed.Value != 1.5 {
			t.Errorf("speed = %+v, want 1.5", params.Speed)
		}
	})
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 0, 2, 0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["input"] != "Goodbye!" || body["response_format"] != "pcm" {
			t.Errorf("unexpected body: %v", body)
		}
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), "Goodbye!", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != string(pcm) || clip.SampleRate != pcmSampleRate || clip.Channels != 1 {
		t.Errorf("clip = %+v", clip)
	}
}

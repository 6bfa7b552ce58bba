package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.SamplesToBytes([]int16{100, 200, -100, -200})
	got := audio.BytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()
	in := audio.SamplesToBytes(make([]int16, 48000))
	out := audio.ResampleMono16(in, 48000, 16000)
	if got := len(out) / 2; got != 16000 {
		t.Errorf("resampled length = %d samples, want 16000", got)
	}
	if same := audio.ResampleMono16(in, 16000, 16000); len(same) != len(in) {
		t.Errorf("same-rate resample changed length: %d != %d", len(same), len(in))
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	t.Run("matching format is unchanged", func(t *testing.T) {
		t.Parallel()
		clip := audio.Clip{Data: audio.SamplesToBytes([]int16{1, 2, 3}), SampleRate: 16000, Channels: 1}
		got := audio.Convert(clip, audio.SpeechFormat)
		if &got.Data[0] != &clip.Data[0] {
			t.Error("expected the original buffer to be returned")
		}
	})

	t.Run("stereo 48k to speech format", func(t *testing.T) {
		t.Parallel()
		clip := audio.Clip{Data: audio.SamplesToBytes(make([]int16, 96000)), SampleRate: 48000, Channels: 2}
		got := audio.Convert(clip, audio.SpeechFormat)
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Fatalf("format = %dHz/%dch, want 16000Hz/1ch", got.SampleRate, got.Channels)
		}
		if d := got.Duration(); d != time.Second {
			t.Errorf("duration = %v, want 1s", d)
		}
	})

	t.Run("mono to stereo", func(t *testing.T) {
		t.Parallel()
		clip := audio.Clip{Data: audio.SamplesToBytes([]int16{7, 9}), SampleRate: 16000, Channels: 1}
		got := audio.Convert(clip, audio.Format{SampleRate: 16000, Channels: 2})
		want := []int16{7, 7, 9, 9}
		samples := got.Samples()
		if len(samples) != len(want) {
			t.Fatalf("got %d samples, want %d", len(samples), len(want))
		}
		for i := range want {
			if samples[i] != want[i] {
				t.Errorf("sample %d = %d, want %d", i, samples[i], want[i])
			}
		}
	})
}

func TestWAVRoundTripPreservesFormat(t *testing.T) {
	t.Parallel()
	clip := audio.Clip{Data: audio.SamplesToBytes([]int16{-3, 0, 3, 1000}), SampleRate: 22050, Channels: 1}
	got, err := audio.DecodeWAV(audio.EncodeWAV(clip))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 1 {
		t.Errorf("format = %d/%d, want 22050/1", got.SampleRate, got.Channels)
	}
	if string(got.Data) != string(clip.Data) {
		t.Error("PCM payload changed")
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()
	for name, data := range map[string][]byte{
		"short":     []byte("RIFF"),
		"no riff":   []byte("XXXX\x00\x00\x00\x00WAVEfmt "),
		"no wave":   []byte("RIFF\x00\x00\x00\x00XXXXfmt "),
		"no chunks": []byte("RIFF\x04\x00\x00\x00WAVE"),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.DecodeWAV(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(audio.SamplesToBytes([]int16{3, -3, 3, -3})); got != 3 {
		t.Errorf("RMS = %v, want 3", got)
	}
}

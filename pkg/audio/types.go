package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Clip is a contiguous block of PCM audio, either captured from a [Recorder]
// or synthesised for a [Player].
type Clip struct {
	// PCM audio data, 16-bit signed little-endian, channels interleaved.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech recognition).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Empty reports whether the clip contains no whole sample.
func (c Clip) Empty() bool { return len(c.Data) < 2 }

// Duration returns the playback length of the clip. Returns 0 when the
// format fields are not set.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Samples decodes the clip into int16 samples. Stereo clips return the
// interleaved samples unchanged.
func (c Clip) Samples() []int16 {
	return BytesToSamples(c.Data)
}

// BytesToSamples converts little-endian int16 PCM bytes to samples. A trailing
// odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square energy of a 16-bit PCM buffer in sample
// units (0–32 767). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

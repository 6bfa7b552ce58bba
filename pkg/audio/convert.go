package audio

import (
	"fmt"
	"log/slog"
)

// Format describes the sample rate and channel count of a clip.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the format expected by the speech recognisers:
// 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// Convert converts clip to the target format. If the clip already matches the
// target it is returned unchanged (zero allocation). Only mono and stereo
// sources are supported; other channel counts are returned unchanged with a
// warning.
//
// Conversion order: downmix first, then resample, so stereo input is never
// resampled twice.
func Convert(clip Clip, target Format) Clip {
	if len(clip.Data)%2 != 0 {
		slog.Warn("audio convert: odd byte count in PCM data, truncating",
			"bytes", len(clip.Data),
			"format", formatString(clip.SampleRate, clip.Channels),
		)
		clip.Data = clip.Data[:len(clip.Data)-1]
	}
	if clip.SampleRate == target.SampleRate && clip.Channels == target.Channels {
		return clip
	}

	pcm := clip.Data
	channels := clip.Channels

	switch {
	case channels == 2 && target.Channels == 1:
		pcm = StereoToMono(pcm)
		channels = 1
	case channels == 1 && target.Channels == 2:
		// Resample while still mono, then duplicate.
	case channels != target.Channels:
		slog.Warn("audio convert: unsupported channel layout",
			"from", formatString(clip.SampleRate, clip.Channels),
			"to", formatString(target.SampleRate, target.Channels),
		)
		return clip
	}

	if clip.SampleRate != target.SampleRate {
		pcm = ResampleMono16(pcm, clip.SampleRate, target.SampleRate)
	}
	if channels == 1 && target.Channels == 2 {
		pcm = MonoToStereo(pcm)
		channels = 2
	}

	return Clip{Data: pcm, SampleRate: target.SampleRate, Channels: channels}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

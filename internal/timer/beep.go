package timer

import (
	"context"
	"math"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

const (
	beepSampleRate = 16000
	beepGap        = 200 * time.Millisecond
	beepAmplitude  = 0.4 * math.MaxInt16
)

// Beeper is an [Alerter] that plays a series of sine-wave beeps through an
// [audio.Player].
type Beeper struct {
	player audio.Player
	clip   audio.Clip
}

var _ Alerter = (*Beeper)(nil)

// NewBeeper renders count beeps of freq Hz, each lasting d and separated by a
// short gap. Non-positive arguments fall back to 3 beeps of 880 Hz for 200ms.
func NewBeeper(player audio.Player, count int, freq float64, d time.Duration) *Beeper {
	if count <= 0 {
		count = 3
	}
	if freq <= 0 {
		freq = 880
	}
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	return &Beeper{player: player, clip: BeepClip(count, freq, d)}
}

// Alert implements [Alerter].
func (b *Beeper) Alert(ctx context.Context) error {
	return b.player.Play(ctx, b.clip)
}

// BeepClip renders count tones of freq Hz, each d long, at 16 kHz mono.
func BeepClip(count int, freq float64, d time.Duration) audio.Clip {
	toneN := int(d.Seconds() * beepSampleRate)
	gapN := int(beepGap.Seconds() * beepSampleRate)
	fade := min(toneN/10, beepSampleRate/200)

	samples := make([]int16, 0, count*(toneN+gapN))
	for i := range count {
		for n := range toneN {
			env := 1.0
			if fade > 0 {
				// Short linear ramps avoid clicks at both ends.
				env = math.Min(1, math.Min(float64(n)/float64(fade), float64(toneN-n)/float64(fade)))
			}
			v := beepAmplitude * env * math.Sin(2*math.Pi*freq*float64(n)/beepSampleRate)
			samples = append(samples, int16(v))
		}
		if i < count-1 {
			samples = append(samples, make([]int16, gapN)...)
		}
	}
	return audio.Clip{Data: audio.SamplesToBytes(samples), SampleRate: beepSampleRate, Channels: 1}
}

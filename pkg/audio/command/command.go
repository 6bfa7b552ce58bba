// Package command provides [audio.Recorder] and [audio.Player]
// implementations that shell out to command-line audio tools such as ALSA's
// arecord/aplay or SoX's rec/play.
//
// The commands exchange raw 16-bit little-endian PCM over stdin/stdout, so any
// tool that can read or write headerless PCM works. Argument templates may
// reference {rate}, {channels} and {seconds}; they are substituted before the
// command is started.
//
// Typical usage:
//
//	rec := command.NewRecorder()                       // arecord defaults
//	clip, err := rec.Record(ctx, 4*time.Second)
//
//	player := command.NewPlayer()                      // aplay defaults
//	err = player.Play(ctx, clip)
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

var (
	_ audio.Recorder = (*Recorder)(nil)
	_ audio.Player   = (*Player)(nil)
)

// Default argument templates for ALSA utilities.
var (
	DefaultRecordCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-d", "{seconds}"}
	DefaultPlayCommand   = []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}"}
)

// Option is a functional option shared by [Recorder] and [Player].
type Option func(*settings)

type settings struct {
	argv   []string
	format audio.Format
}

// WithCommand overrides the argument template. argv[0] is the executable.
func WithCommand(argv ...string) Option {
	return func(s *settings) {
		if len(argv) > 0 {
			s.argv = append([]string(nil), argv...)
		}
	}
}

// WithFormat sets the capture format for a Recorder. Players ignore it and
// use each clip's own format. Defaults to [audio.SpeechFormat].
func WithFormat(f audio.Format) Option {
	return func(s *settings) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.format = f
		}
	}
}

// Recorder captures audio by running an external recording command for the
// requested window and reading raw PCM from its stdout.
type Recorder struct {
	settings
}

// NewRecorder returns a Recorder using [DefaultRecordCommand] unless
// overridden by options.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{settings{argv: DefaultRecordCommand, format: audio.SpeechFormat}}
	for _, o := range opts {
		o(&r.settings)
	}
	return r
}

// Record runs the capture command for d (rounded up to whole seconds, the
// granularity most recorders accept). ctx is only consulted before the
// command starts; once started, the capture runs for its full window.
func (r *Recorder) Record(ctx context.Context, d time.Duration) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, fmt.Errorf("command: record: %w", err)
	}
	if d <= 0 {
		return audio.Clip{}, errors.New("command: record duration must be positive")
	}
	seconds := int((d + time.Second - 1) / time.Second)
	argv := expand(r.argv, r.format, seconds)

	// The window itself bounds the run time; a generous grace period catches
	// a wedged device.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d+5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return audio.Clip{}, fmt.Errorf("command: %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return audio.Clip{Data: stdout.Bytes(), SampleRate: r.format.SampleRate, Channels: r.format.Channels}, nil
}

// Player plays audio by piping raw PCM into an external playback command.
// Concurrent Play calls are serialised so clips never overlap.
type Player struct {
	settings
	mu sync.Mutex
}

// NewPlayer returns a Player using [DefaultPlayCommand] unless overridden by
// options.
func NewPlayer(opts ...Option) *Player {
	p := &Player{settings: settings{argv: DefaultPlayCommand, format: audio.SpeechFormat}}
	for _, o := range opts {
		o(&p.settings)
	}
	return p
}

// Play writes clip to the playback command's stdin and waits for it to exit.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}
	format := audio.Format{SampleRate: clip.SampleRate, Channels: clip.Channels}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		format = p.format
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	argv := expand(p.argv, format, int(clip.Duration()/time.Second)+1)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command: %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// expand substitutes the placeholders in argv.
func expand(argv []string, f audio.Format, seconds int) []string {
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(f.SampleRate),
		"{channels}", strconv.Itoa(f.Channels),
		"{seconds}", strconv.Itoa(seconds),
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

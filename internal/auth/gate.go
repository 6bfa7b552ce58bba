// Package auth implements the voice authentication gate that protects
// sensitive system commands.
//
// A [Gate] moves between three states. Without a stored profile it is
// [StateUnenrolled]. [Gate.Enroll] records three passphrase samples and
// stores their mean feature vector, leaving the gate [StateEnrolledLocked].
// A successful [Gate.Authenticate] unlocks it until [Gate.Revoke], a failed
// attempt, or the session timeout locks it again.
//
// Enrollment and authentication block while they record speech. They are
// serialised against each other; state queries never wait for them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/speech"
)

// Sentinel errors returned by the gate.
var (
	// ErrNotEnrolled is returned by Authenticate when no profile exists.
	ErrNotEnrolled = errors.New("auth: no voice profile enrolled")

	// ErrAuthFailed is returned when every authentication attempt failed.
	ErrAuthFailed = errors.New("auth: voice not recognised")

	// ErrEnrollmentFailed is returned when the enrollment attempt budget is
	// exhausted before enough samples were accepted.
	ErrEnrollmentFailed = errors.New("auth: enrollment failed")

	// ErrSpeechUnavailable aborts authentication when the speech service fails.
	ErrSpeechUnavailable = errors.New("auth: speech recognition unavailable")
)

// Enrollment and authentication budgets.
const (
	EnrollmentSamples  = 3
	MaxEnrollFailures  = 5
	MaxAuthAttempts    = 3
	MinPassphraseWords = 3
)

// DefaultPassphrase is the phrase requested when none is configured.
const DefaultPassphrase = "My voice is my password"

// State is the gate's authentication state.
type State int

const (
	StateUnenrolled State = iota
	StateEnrolledLocked
	StateEnrolledUnlocked
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateUnenrolled:
		return "unenrolled"
	case StateEnrolledLocked:
		return "locked"
	case StateEnrolledUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Profile is an enrolled voice signature.
type Profile struct {
	Features   Features
	Passphrase string
	EnrolledAt time.Time
}

// ProfileStore persists the single voice profile.
type ProfileStore interface {
	// LoadProfile returns the stored profile. ok is false when none exists.
	LoadProfile(ctx context.Context) (p Profile, ok bool, err error)

	// SaveProfile replaces the stored profile.
	SaveProfile(ctx context.Context, p Profile) error
}

// Config tunes the gate. Zero values select the defaults.
type Config struct {
	// Passphrase is requested during enrollment. Default: [DefaultPassphrase].
	Passphrase string

	// SampleDuration is the length of each recorded sample. Default: 4s.
	SampleDuration time.Duration

	// ThresholdRatio scales ‖profile‖ into the acceptance distance. Default: 0.5.
	ThresholdRatio float64

	// SessionTimeout locks an unlocked gate after this long. Zero never expires.
	SessionTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Passphrase == "" {
		c.Passphrase = DefaultPassphrase
	}
	if c.SampleDuration <= 0 {
		c.SampleDuration = 4 * time.Second
	}
	if c.ThresholdRatio <= 0 {
		c.ThresholdRatio = 0.5
	}
}

// Option configures a Gate.
type Option func(*Gate)

// WithStore persists profiles in s.
func WithStore(s ProfileStore) Option { return func(g *Gate) { g.store = s } }

// WithSpeaker sets the speaker used for prompts. Default: silent.
func WithSpeaker(s speech.Speaker) Option { return func(g *Gate) { g.speaker = s } }

// WithMetrics records enrollment and authentication outcomes.
func WithMetrics(m *observe.Metrics) Option { return func(g *Gate) { g.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// Gate is the voice authentication gate.
type Gate struct {
	cfg      Config
	listener speech.Listener
	speaker  speech.Speaker
	store    ProfileStore
	metrics  *observe.Metrics
	now      func() time.Time

	// op serialises Enroll and Authenticate.
	op sync.Mutex

	mu            sync.RWMutex
	profile       *Profile
	authenticated bool
	unlockedAt    time.Time
}

// New creates a gate that records samples through l.
func New(l speech.Listener, cfg Config, opts ...Option) *Gate {
	cfg.applyDefaults()
	g := &Gate{
		cfg:      cfg,
		listener: l,
		speaker:  silentSpeaker{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Load restores the profile from the store. It is a no-op without a store.
func (g *Gate) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	p, ok, err := g.store.LoadProfile(ctx)
	if err != nil {
		return fmt.Errorf("auth: load profile: %w", err)
	}
	if !ok {
		return nil
	}
	g.mu.Lock()
	g.profile = &p
	g.authenticated = false
	g.mu.Unlock()
	return nil
}

// ── State ────────────────────────────────────────────────────────────────────

// State returns the current state, taking session expiry into account.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case g.profile == nil:
		return StateUnenrolled
	case g.unlockedLocked():
		return StateEnrolledUnlocked
	default:
		return StateEnrolledLocked
	}
}

// IsEnrolled reports whether a profile exists.
func (g *Gate) IsEnrolled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.profile != nil
}

// IsAuthenticated reports whether the gate is unlocked and the session has
// not expired.
func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.profile != nil && g.unlockedLocked()
}

// Profile returns a copy of the enrolled profile.
func (g *Gate) Profile() (Profile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.profile == nil {
		return Profile{}, false
	}
	return *g.profile, true
}

// Revoke locks the gate. The profile is kept.
func (g *Gate) Revoke() {
	g.mu.Lock()
	g.authenticated = false
	g.mu.Unlock()
}

// unlockedLocked must be called with mu held.
func (g *Gate) unlockedLocked() bool {
	if !g.authenticated {
		return false
	}
	if g.cfg.SessionTimeout > 0 && g.now().Sub(g.unlockedAt) >= g.cfg.SessionTimeout {
		return false
	}
	return true
}

// ── Enroll ───────────────────────────────────────────────────────────────────

// Enroll records [EnrollmentSamples] samples of passphrase and replaces the
// profile with their mean. An empty passphrase selects the configured one.
// Each rejected sample or speech failure costs one of [MaxEnrollFailures]
// attempts. On failure the previous profile and state are kept.
func (g *Gate) Enroll(ctx context.Context, passphrase string) (err error) {
	g.op.Lock()
	defer g.op.Unlock()

	ctx, span := observe.StartSpan(ctx, "auth.enroll")
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	if passphrase == "" {
		passphrase = g.cfg.Passphrase
	}
	g.speaker.Speak(ctx, fmt.Sprintf("Please say: %s. You will need to say it %d times.", passphrase, EnrollmentSamples))

	samples := make([]Features, 0, EnrollmentSamples)
	failures := 0
	for len(samples) < EnrollmentSamples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if failures >= MaxEnrollFailures {
			g.record(ctx, "enroll", "failure")
			g.speaker.Speak(ctx, "Enrollment failed after multiple attempts.")
			return ErrEnrollmentFailed
		}

		f, reason := g.sample(ctx)
		if reason != "" {
			failures++
			log.Info("auth: enrollment sample rejected", "reason", reason, "failures", failures)
			g.speaker.Speak(ctx, "Please say the full passphrase clearly.")
			continue
		}
		samples = append(samples, f)
		log.Debug("auth: enrollment sample accepted", "sample", len(samples))
	}

	p := Profile{
		Features:   Mean(samples),
		Passphrase: strings.ToLower(passphrase),
		EnrolledAt: g.now(),
	}
	if g.store != nil {
		if err := g.store.SaveProfile(ctx, p); err != nil {
			g.record(ctx, "enroll", "error")
			return fmt.Errorf("auth: save profile: %w", err)
		}
	}

	g.mu.Lock()
	g.profile = &p
	g.authenticated = false
	g.mu.Unlock()

	g.record(ctx, "enroll", "success")
	g.speaker.Speak(ctx, "Voice authentication enrolled successfully.")
	log.Info("auth: voice profile enrolled")
	return nil
}

// ── Authenticate ─────────────────────────────────────────────────────────────

// Authenticate records up to [MaxAuthAttempts] samples and unlocks the gate
// on the first one that matches the profile. It returns [ErrNotEnrolled]
// without a profile, [ErrSpeechUnavailable] when the speech service fails,
// and [ErrAuthFailed] when no attempt matched. Any failure locks the gate.
func (g *Gate) Authenticate(ctx context.Context) (err error) {
	g.op.Lock()
	defer g.op.Unlock()

	ctx, span := observe.StartSpan(ctx, "auth.authenticate")
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	profile, ok := g.Profile()
	if !ok {
		g.record(ctx, "authenticate", "unenrolled")
		return ErrNotEnrolled
	}

	g.speaker.Speak(ctx, "Voice authentication required. Please say: "+profile.Passphrase)
	for attempt := 1; attempt <= MaxAuthAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			g.lock()
			return err
		}

		r := g.listener.Listen(context.WithoutCancel(ctx), g.cfg.SampleDuration)
		if r.Status == speech.StatusServiceError {
			g.lock()
			g.record(ctx, "authenticate", "unavailable")
			log.Warn("auth: speech service failed during authentication", "err", r.Err)
			return ErrSpeechUnavailable
		}

		f, reason := extractAccepted(r)
		if reason == "" && Matches(profile.Features, f, g.cfg.ThresholdRatio) {
			g.mu.Lock()
			g.authenticated = true
			g.unlockedAt = g.now()
			g.mu.Unlock()
			g.record(ctx, "authenticate", "success")
			g.speaker.Speak(ctx, "Voice authentication successful.")
			return nil
		}
		if reason == "" {
			reason = "distance"
		}
		log.Info("auth: authentication attempt failed", "attempt", attempt, "reason", reason)
		if attempt < MaxAuthAttempts {
			g.speaker.Speak(ctx, "Voice not recognised. Please try again.")
		}
	}

	g.lock()
	g.record(ctx, "authenticate", "failure")
	g.speaker.Speak(ctx, "Authentication failed.")
	return ErrAuthFailed
}

// ── helpers ──────────────────────────────────────────────────────────────────

// sample records one enrollment sample. reason is empty when it was accepted.
func (g *Gate) sample(ctx context.Context) (Features, string) {
	r := g.listener.Listen(context.WithoutCancel(ctx), g.cfg.SampleDuration)
	if r.Status == speech.StatusServiceError {
		return Features{}, "speech service error"
	}
	return extractAccepted(r)
}

// extractAccepted validates a recognised sample and extracts its features.
func extractAccepted(r speech.Result) (Features, string) {
	switch {
	case r.Status == speech.StatusNoSpeech:
		return Features{}, "no speech"
	case len(strings.Fields(r.Text)) < MinPassphraseWords:
		return Features{}, "too few words"
	}
	f, err := Extract(r.Audio.Samples())
	if err != nil {
		return Features{}, err.Error()
	}
	return f, ""
}

func (g *Gate) lock() {
	g.mu.Lock()
	g.authenticated = false
	g.mu.Unlock()
}

func (g *Gate) record(ctx context.Context, op, result string) {
	if g.metrics != nil {
		g.metrics.RecordAuthAttempt(ctx, op, result)
	}
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(context.Context, string) {}

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/speech/mock"
	"github.com/MrWong99/jarvis/pkg/audio"
)

// voice returns an OK result whose audio is a constant signal of level v.
func voice(text string, v int16) speech.Result {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = v
	}
	return speech.Result{
		Status: speech.StatusOK,
		Text:   text,
		Audio:  audio.Clip{Data: audio.SamplesToBytes(samples), SampleRate: 16000, Channels: 1},
	}
}

const phrase = "my voice is my password"

func enrolled(v int16) []speech.Result {
	return []speech.Result{voice(phrase, v), voice(phrase, v), voice(phrase, v)}
}

type memStore struct {
	mu      sync.Mutex
	profile *auth.Profile
	saveErr error
	saves   int
}

func (s *memStore) LoadProfile(context.Context) (auth.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return auth.Profile{}, false, nil
	}
	return *s.profile, true, nil
}

func (s *memStore) SaveProfile(_ context.Context, p auth.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.profile = &p
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ── Enroll ───────────────────────────────────────────────────────────────────

func TestEnroll_Success(t *testing.T) {
	t.Parallel()
	l := &mock.Listener{Results: []speech.Result{voice(phrase, 100), voice(phrase, 110), voice(phrase, 120)}}
	store := &memStore{}
	sp := &mock.Speaker{}
	g := auth.New(l, auth.Config{SampleDuration: 3 * time.Second}, auth.WithStore(store), auth.WithSpeaker(sp))

	if g.State() != auth.StateUnenrolled {
		t.Fatalf("initial state = %v", g.State())
	}
	if err := g.Enroll(context.Background(), ""); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if g.State() != auth.StateEnrolledLocked || !g.IsEnrolled() || g.IsAuthenticated() {
		t.Errorf("state after enroll = %v", g.State())
	}
	p, ok := g.Profile()
	if !ok || p.Features[0] != 110 || p.Passphrase != phrase {
		t.Errorf("profile = %+v", p)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d", store.saves)
	}
	for _, w := range l.Windows {
		if w != 3*time.Second {
			t.Errorf("sample window = %v", w)
		}
	}
	if len(sp.Texts()) == 0 {
		t.Error("expected spoken prompts")
	}
}

func TestEnroll_RejectionsCountAgainstBudget(t *testing.T) {
	t.Parallel()
	results := []speech.Result{
		mock.NoSpeech(),
		voice("hi there", 100),
		mock.ServiceError(errors.New("offline")),
		voice(phrase, 100),
		voice(phrase, 100),
		voice(phrase, 100),
	}
	l := &mock.Listener{Results: results}
	g := auth.New(l, auth.Config{})
	if err := g.Enroll(context.Background(), phrase); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if l.CallCount() != 6 {
		t.Errorf("Listen calls = %d, want 6", l.CallCount())
	}
}

func TestEnroll_BudgetExhausted(t *testing.T) {
	t.Parallel()
	l := &mock.Listener{Results: []speech.Result{
		voice(phrase, 100),
		voice("no", 100),
		voice("no", 100),
		voice("no", 100),
		voice("no", 100),
		voice("no", 100),
		voice(phrase, 100),
	}}
	store := &memStore{}
	g := auth.New(l, auth.Config{}, auth.WithStore(store))

	err := g.Enroll(context.Background(), phrase)
	if !errors.Is(err, auth.ErrEnrollmentFailed) {
		t.Fatalf("err = %v, want ErrEnrollmentFailed", err)
	}
	if l.CallCount() != 6 {
		t.Errorf("Listen calls = %d, want 6", l.CallCount())
	}
	if g.IsEnrolled() || store.saves != 0 {
		t.Error("failed enrollment must not create a profile")
	}
}

func TestEnroll_FailureKeepsPreviousProfile(t *testing.T) {
	t.Parallel()
	l := &mock.Listener{Results: enrolled(100)}
	g := auth.New(l, auth.Config{})
	if err := g.Enroll(context.Background(), phrase); err != nil {
		t.Fatal(err)
	}
	before, _ := g.Profile()

	// Exhausted listener returns NoSpeech from here on.
	if err := g.Enroll(context.Background(), "another phrase here"); !errors.Is(err, auth.ErrEnrollmentFailed) {
		t.Fatalf("err = %v", err)
	}
	after, ok := g.Profile()
	if !ok || after != before {
		t.Errorf("profile changed: %+v -> %+v", before, after)
	}
}

func TestEnroll_ReplacesProfileAndLocks(t *testing.T) {
	t.Parallel()
	results := append(enrolled(100), voice(phrase, 100))
	results = append(results, enrolled(1000)...)
	g := auth.New(&mock.Listener{Results: results}, auth.Config{})
	ctx := context.Background()
	if err := g.Enroll(ctx, phrase); err != nil {
		t.Fatal(err)
	}
	if err := g.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Enroll(ctx, phrase); err != nil {
		t.Fatal(err)
	}
	p, _ := g.Profile()
	if p.Features[0] != 1000 {
		t.Errorf("profile mean = %v, want 1000", p.Features[0])
	}
	if g.IsAuthenticated() {
		t.Error("re-enrollment should lock the gate")
	}
}

func TestEnroll_SaveError(t *testing.T) {
	t.Parallel()
	g := auth.New(&mock.Listener{Results: enrolled(100)}, auth.Config{}, auth.WithStore(&memStore{saveErr: errors.New("disk full")}))
	if err := g.Enroll(context.Background(), phrase); err == nil {
		t.Fatal("expected save error")
	}
	if g.IsEnrolled() {
		t.Error("profile should not be installed when saving fails")
	}
}

func TestEnroll_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := auth.New(&mock.Listener{Results: enrolled(100)}, auth.Config{})
	if err := g.Enroll(ctx, phrase); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// ── Authenticate ─────────────────────────────────────────────────────────────

func enrolledGate(t *testing.T, rest []speech.Result, opts ...auth.Option) (*auth.Gate, *mock.Listener) {
	t.Helper()
	l := &mock.Listener{Results: append(enrolled(100), rest...)}
	g := auth.New(l, auth.Config{}, opts...)
	if err := g.Enroll(context.Background(), phrase); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	return g, l
}

func TestAuthenticate_NotEnrolled(t *testing.T) {
	t.Parallel()
	l := &mock.Listener{}
	g := auth.New(l, auth.Config{})
	if err := g.Authenticate(context.Background()); !errors.Is(err, auth.ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
	if l.CallCount() != 0 {
		t.Error("should not listen without a profile")
	}
}

func TestAuthenticate_SucceedsOnRetry(t *testing.T) {
	t.Parallel()
	g, l := enrolledGate(t, []speech.Result{voice(phrase, 200), voice(phrase, 105)})
	if err := g.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !g.IsAuthenticated() || g.State() != auth.StateEnrolledUnlocked {
		t.Errorf("state = %v", g.State())
	}
	if l.CallCount() != 5 {
		t.Errorf("Listen calls = %d, want 5", l.CallCount())
	}
}

func TestAuthenticate_FailsAfterThreeAttempts(t *testing.T) {
	t.Parallel()
	g, l := enrolledGate(t, []speech.Result{
		voice(phrase, 200),
		voice("too short", 100),
		mock.NoSpeech(),
		voice(phrase, 100),
	})
	if err := g.Authenticate(context.Background()); !errors.Is(err, auth.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if l.CallCount() != 6 {
		t.Errorf("Listen calls = %d, want 6", l.CallCount())
	}
	if g.State() != auth.StateEnrolledLocked {
		t.Errorf("state = %v", g.State())
	}
}

func TestAuthenticate_ServiceErrorAborts(t *testing.T) {
	t.Parallel()
	g, l := enrolledGate(t, []speech.Result{mock.ServiceError(errors.New("503")), voice(phrase, 100)})
	if err := g.Authenticate(context.Background()); !errors.Is(err, auth.ErrSpeechUnavailable) {
		t.Fatalf("err = %v, want ErrSpeechUnavailable", err)
	}
	if l.CallCount() != 4 {
		t.Errorf("Listen calls = %d, want 4", l.CallCount())
	}
}

func TestAuthenticate_FailureRelocks(t *testing.T) {
	t.Parallel()
	g, _ := enrolledGate(t, []speech.Result{voice(phrase, 100)})
	ctx := context.Background()
	if err := g.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Authenticate(ctx); !errors.Is(err, auth.ErrAuthFailed) {
		t.Fatalf("err = %v", err)
	}
	if g.IsAuthenticated() {
		t.Error("a failed authentication must lock the gate")
	}
}

func TestAuthenticate_ThresholdRatio(t *testing.T) {
	t.Parallel()
	// Constant level 100 gives ‖profile‖ ≈ 10001.5; level 130 is ≈ 6900 away.
	l := &mock.Listener{Results: append(enrolled(100), voice(phrase, 130))}
	g := auth.New(l, auth.Config{ThresholdRatio: 0.8})
	ctx := context.Background()
	if err := g.Enroll(ctx, phrase); err != nil {
		t.Fatal(err)
	}
	if err := g.Authenticate(ctx); err != nil {
		t.Fatalf("ratio 0.8 should accept: %v", err)
	}

	l2 := &mock.Listener{Results: append(enrolled(100), voice(phrase, 130))}
	g2 := auth.New(l2, auth.Config{})
	if err := g2.Enroll(ctx, phrase); err != nil {
		t.Fatal(err)
	}
	if err := g2.Authenticate(ctx); !errors.Is(err, auth.ErrAuthFailed) {
		t.Fatalf("default ratio should reject: %v", err)
	}
}

// ── Session ──────────────────────────────────────────────────────────────────

func TestSessionTimeout(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)}
	l := &mock.Listener{Results: append(enrolled(100), voice(phrase, 100))}
	g := auth.New(l, auth.Config{SessionTimeout: 30 * time.Minute}, auth.WithClock(clk.Now))
	ctx := context.Background()
	if err := g.Enroll(ctx, phrase); err != nil {
		t.Fatal(err)
	}
	if err := g.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}

	clk.Advance(29 * time.Minute)
	if !g.IsAuthenticated() {
		t.Error("session should still be valid")
	}
	clk.Advance(time.Minute)
	if g.IsAuthenticated() || g.State() != auth.StateEnrolledLocked {
		t.Errorf("session should have expired, state = %v", g.State())
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	g, _ := enrolledGate(t, []speech.Result{voice(phrase, 100)})
	if err := g.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.Revoke()
	if g.IsAuthenticated() || !g.IsEnrolled() {
		t.Errorf("after Revoke: state = %v", g.State())
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	store := &memStore{profile: &auth.Profile{Features: auth.Features{100, 0, 10000, 100, 100}, Passphrase: phrase}}
	l := &mock.Listener{Results: []speech.Result{voice(phrase, 100)}}
	g := auth.New(l, auth.Config{}, auth.WithStore(store))
	if err := g.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.State() != auth.StateEnrolledLocked {
		t.Fatalf("state = %v", g.State())
	}
	if err := g.Authenticate(context.Background()); err != nil {
		t.Errorf("Authenticate with loaded profile: %v", err)
	}

	empty := auth.New(l, auth.Config{}, auth.WithStore(&memStore{}))
	if err := empty.Load(context.Background()); err != nil || empty.IsEnrolled() {
		t.Errorf("empty store: err=%v enrolled=%v", err, empty.IsEnrolled())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	if auth.StateEnrolledUnlocked.String() != "unlocked" || auth.State(7).String() != "State(7)" {
		t.Error("unexpected state names")
	}
}

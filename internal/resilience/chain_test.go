package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// call runs a chain of named backends where failing names return errBackend.
func call(c *Chain[string], failing ...string) (string, error) {
	return Call(context.Background(), c, func(_ context.Context, name string) (string, error) {
		for _, f := range failing {
			if name == f {
				return "", errBackend
			}
		}
		return name, nil
	})
}

func newTestChain(cfg FallbackConfig, names ...string) *Chain[string] {
	c := NewChain(names[0], names[0], cfg)
	for _, n := range names[1:] {
		c.Add(n, n)
	}
	return c
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing []string
		want    string
	}{
		{"primary answers", nil, "ollama"},
		{"first fallback", []string{"ollama"}, "openai"},
		{"last fallback", []string{"ollama", "openai"}, "anyllm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestChain(FallbackConfig{}, "ollama", "openai", "anyllm")
			got, err := call(c, tt.failing...)
			if err != nil || got != tt.want {
				t.Errorf("Call = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestChain_AllFailed(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{}, "whisper", "openai")

	_, err := call(c, "whisper", "openai")
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping the backend error", err)
	}
	for _, name := range []string{"whisper:", "openai:"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("err = %q, missing %q", err, name)
		}
	}
}

func TestChain_SkipsOpenMember(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}},
		"coqui", "openai")

	for range 2 {
		_, _ = call(c, "coqui")
	}
	if got := c.States(); got["coqui"] != StateOpen || got["openai"] != StateClosed {
		t.Fatalf("States() = %v", got)
	}

	var tried []string
	_, err := Call(context.Background(), c, func(_ context.Context, name string) (string, error) {
		tried = append(tried, name)
		return name, nil
	})
	if err != nil || len(tried) != 1 || tried[0] != "openai" {
		t.Errorf("tried = %v, err = %v; the open member should be skipped", tried, err)
	}
}

func TestChain_NonFailurePassesThrough(t *testing.T) {
	t.Parallel()
	errNoMatch := errors.New("no match")
	c := newTestChain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		IsFailure: func(err error) bool { return !errors.Is(err, errNoMatch) },
	}}, "primary", "secondary")

	calls := 0
	_, err := Call(context.Background(), c, func(context.Context, string) (string, error) {
		calls++
		return "", errNoMatch
	})
	if !errors.Is(err, errNoMatch) || errors.Is(err, ErrAllFailed) || calls != 1 {
		t.Errorf("err = %v after %d calls, want errNoMatch from the primary only", err, calls)
	}
}

func TestChain_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{}, "primary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Call(ctx, c, func(context.Context, string) (string, error) {
		calls++
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v after %d calls, want context.Canceled after one", err, calls)
	}
	if c.States()["primary"] != StateClosed {
		t.Error("cancellation counted against the primary")
	}
}

func TestChain_Accessors(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{}, "a", "b", "c")
	if c.Primary() != "a" || c.Len() != 3 || len(c.States()) != 3 {
		t.Errorf("Primary() = %q, Len() = %d, States() = %v", c.Primary(), c.Len(), c.States())
	}
}

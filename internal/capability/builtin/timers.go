package builtin

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/internal/capability"
	"github.com/MrWong99/jarvis/internal/timer"
)

type timers struct {
	svc *timer.Service
}

// set accepts either a "seconds" number or a free-text "duration"; the raw
// utterance is used when neither parses.
func (t *timers) set(_ context.Context, req capability.Request) capability.Result {
	var d time.Duration
	if s := req.Param("seconds"); s != "" {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(n * float64(time.Second))
		}
	}
	if d <= 0 {
		for _, text := range []string{req.Param("duration"), req.Raw} {
			if parsed, ok := timer.ParseDuration(text); ok {
				d = parsed
				break
			}
		}
	}
	if d <= 0 {
		return capability.Fail("I couldn't understand the timer duration. Try saying something like 'set a timer for 5 minutes'.")
	}

	e, err := t.svc.Set(d, req.Param("label"))
	if err != nil {
		return capability.Result{Message: "Failed to set timer", Err: err}
	}
	return capability.OK("Timer set for %s", timer.FormatDuration(e.Duration))
}

func (t *timers) list(context.Context, capability.Request) capability.Result {
	active := t.svc.List()
	if len(active) == 0 {
		return capability.OK("No active timers")
	}
	lines := make([]string, 0, len(active))
	for _, s := range active {
		lines = append(lines, s.Label+": "+timer.FormatDuration(s.Remaining)+" remaining")
	}
	return capability.OK("Active timers:\n%s", strings.Join(lines, "\n"))
}

func (t *timers) cancel(_ context.Context, req capability.Request) capability.Result {
	raw := req.Param("id")
	if raw == "" {
		e, err := t.svc.CancelLatest()
		if err != nil {
			return capability.Fail("No active timers to cancel")
		}
		return capability.OK("Cancelled timer: %s", e.Label)
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return capability.Fail("No timer with id %s", raw)
	}
	e, err := t.svc.Cancel(id)
	if err != nil {
		return capability.Fail("No timer with id %d", id)
	}
	return capability.OK("Cancelled timer: %s", e.Label)
}

// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs the
// registered [Checker]s concurrently and answers 503 when a required check
// fails. Optional checks (the wake loop, say) only downgrade the status to
// "degraded": typed commands still work without a microphone.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/resilience"
)

// checkTimeout bounds each check.
const checkTimeout = 5 * time.Second

// Status values reported in a [Report].
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency. Check returns nil when it is healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// optional checks degrade readiness instead of failing it.
	optional bool
}

// Optional returns a copy of c whose failure only degrades readiness.
func (c Checker) Optional() Checker {
	c.optional = true
	return c
}

// CheckResult is one entry of a [Report].
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency"`
}

// Report is the /readyz response body.
type Report struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime,omitempty"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New returns a Handler evaluating checkers on each readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers), started: time.Now()}
}

// Run evaluates every checker concurrently and summarises the results in
// checker name order.
func (h *Handler) Run(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := CheckResult{
				Name:     c.Name,
				Status:   StatusOK,
				Optional: c.optional,
				Latency:  time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				res.Status, res.Error = StatusFail, err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b CheckResult) int { return strings.Compare(a.Name, b.Name) })
	rep := Report{Status: StatusOK, Checks: results, Uptime: time.Since(h.started).Round(time.Second).String()}
	for _, r := range results {
		switch {
		case r.Status == StatusOK:
		case r.Optional:
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		default:
			rep.Status = StatusFail
		}
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness probe: 503 when a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// ── Checkers ────────────────────────────────────────────────────────────────

// Pinger is implemented by the profile and cache stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks p.Ping.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// BreakerChecker fails once every backend reported by states has an open
// breaker. One closed or half-open backend can still serve.
func BreakerChecker(name string, states func() map[string]resilience.State) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		st := states()
		open := make([]string, 0, len(st))
		for backend, s := range st {
			if s != resilience.StateOpen {
				return nil
			}
			open = append(open, backend)
		}
		if len(open) == 0 {
			return nil
		}
		slices.Sort(open)
		return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
	}}
}

var errNotRunning = errors.New("not running")

// FlagChecker passes while running reports true.
func FlagChecker(name string, running func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !running() {
			return errNotRunning
		}
		return nil
	}}
}

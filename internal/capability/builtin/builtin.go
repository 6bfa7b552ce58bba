// Package builtin provides the capability handlers shipped with the
// assistant: clock, timers, arithmetic and unit conversion, application and
// folder launching, web search, weather, media keys and help.
//
// Handlers that touch the operating system go through a [Launcher] so they
// can be exercised in tests without spawning processes.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/MrWong99/jarvis/internal/capability"
	"github.com/MrWong99/jarvis/internal/intent"
	"github.com/MrWong99/jarvis/internal/timer"
)

// Launcher runs external programs on behalf of handlers.
type Launcher interface {
	// Start launches name detached; it returns once the process started.
	Start(ctx context.Context, name string, args ...string) error
	// Run executes name and waits for it to exit.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecLauncher implements [Launcher] with os/exec.
type ExecLauncher struct{}

var _ Launcher = ExecLauncher{}

// Start implements [Launcher].
func (ExecLauncher) Start(_ context.Context, name string, args ...string) error {
	// Detached processes must outlive the request context.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("builtin: start %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("launched process exited", "cmd", name, "err", err)
		}
	}()
	return nil
}

// Run implements [Launcher].
func (ExecLauncher) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("builtin: run %s: %w (%s)", name, err, out)
	}
	return nil
}

// Deps are the collaborators shared by the built-in handlers. Nil fields get
// defaults in [Register].
type Deps struct {
	Timers     *timer.Service
	Launcher   Launcher
	HTTPClient *http.Client
	// WeatherURL is the wttr.in compatible endpoint. Default: https://wttr.in
	WeatherURL string
	Now        func() time.Time
	// Name is how the assistant refers to itself in help output.
	Name       string
}

// Register installs every built-in handler on r. Timer handlers are only
// registered when d.Timers is set.
func Register(r *capability.Registry, d Deps) {
	if d.Launcher == nil {
		d.Launcher = ExecLauncher{}
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if d.WeatherURL == "" {
		d.WeatherURL = defaultWeatherURL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Name == "" {
		d.Name = "JARVIS"
	}

	clock := &clock{now: d.Now}
	r.Register(intent.IntentProductivity, "get_time", clock.getTime)
	r.Register(intent.IntentProductivity, "get_date", clock.getDate)

	if d.Timers != nil {
		t := &timers{svc: d.Timers}
		r.Register(intent.IntentTimer, "set_timer", t.set)
		r.Register(intent.IntentTimer, "list_timers", t.list)
		r.Register(intent.IntentTimer, "cancel_timer", t.cancel)
	}

	r.Register(intent.IntentCalculation, "calculate", calculate)
	r.Register(intent.IntentCalculation, "convert_units", convertUnits)

	sys := &system{launcher: d.Launcher}
	r.Register(intent.IntentSystemControl, "open_app", sys.openApp)
	r.Register(intent.IntentSystemControl, "close_app", sys.closeApp)
	r.Register(intent.IntentSystemControl, "lock_screen", sys.lockScreen)
	r.Register(intent.IntentFileOperation, "open_explorer", sys.openExplorer)

	web := &web{launcher: d.Launcher}
	for _, in := range []string{intent.IntentSearch, intent.IntentWebBrowsing} {
		r.Register(in, "search_web", web.search)
		r.Register(in, "open_website", web.open)
		r.Register(in, "search_youtube", web.youtube)
	}

	w := &weather{client: d.HTTPClient, baseURL: d.WeatherURL}
	r.Register(intent.IntentWeather, "get_weather", w.get)

	m := &media{launcher: d.Launcher}
	for action := range mediaCommands {
		r.Register(intent.IntentMediaControl, action, m.handler(action))
	}

	r.Register(intent.IntentGeneral, "help", help(d.Name))
}

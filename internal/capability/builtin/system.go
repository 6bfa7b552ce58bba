package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/jarvis/internal/capability"
)

// appCommands maps spoken application names to executables.
var appCommands = map[string]string{
	"calculator":    "gnome-calculator",
	"calc":          "gnome-calculator",
	"notepad":       "gedit",
	"text editor":   "gedit",
	"paint":         "pinta",
	"terminal":      "x-terminal-emulator",
	"browser":       "xdg-open",
	"firefox":       "firefox",
	"chrome":        "google-chrome",
	"file explorer": "xdg-open",
	"files":         "xdg-open",
	"spotify":       "spotify",
	"vscode":        "code",
	"code":          "code",
}

// folderNames maps explorer locations to XDG user directory names.
var folderNames = map[string]string{
	"downloads": "Downloads",
	"documents": "Documents",
	"pictures":  "Pictures",
	"desktop":   "Desktop",
	"music":     "Music",
	"videos":    "Videos",
}

type system struct {
	launcher Launcher
}

func (s *system) openApp(ctx context.Context, req capability.Request) capability.Result {
	app := strings.ToLower(req.Param("app"))
	if app == "" {
		return capability.Fail("Which application should I open?")
	}
	cmd, ok := appCommands[app]
	if !ok {
		cmd = strings.ReplaceAll(app, " ", "-")
	}
	var args []string
	if cmd == "xdg-open" {
		args = []string{homeDir()}
		if app == "browser" {
			args = []string{"https://www.google.com"}
		}
	}
	if err := s.launcher.Start(ctx, cmd, args...); err != nil {
		return capability.Fail("I couldn't open %s", app)
	}
	return capability.OK("Opening %s", app)
}

func (s *system) closeApp(ctx context.Context, req capability.Request) capability.Result {
	app := strings.ToLower(req.Param("app"))
	if app == "" {
		return capability.Fail("Which application should I close?")
	}
	cmd, ok := appCommands[app]
	if !ok || cmd == "xdg-open" {
		cmd = app
	}
	if err := s.launcher.Run(ctx, "pkill", "-f", cmd); err != nil {
		return capability.Fail("I couldn't find %s running", app)
	}
	return capability.OK("Closed %s", app)
}

func (s *system) lockScreen(ctx context.Context, _ capability.Request) capability.Result {
	if err := s.launcher.Run(ctx, "loginctl", "lock-session"); err != nil {
		return capability.Fail("I couldn't lock the screen")
	}
	return capability.OK("Screen locked")
}

func (s *system) openExplorer(ctx context.Context, req capability.Request) capability.Result {
	loc := strings.ToLower(req.Param("location"))
	path := homeDir()
	name := "your home folder"
	if dir, ok := folderNames[loc]; ok {
		path = filepath.Join(path, dir)
		name = loc
	} else if loc != "" && loc != "home" {
		return capability.Fail("I don't know the %s folder", loc)
	}
	if err := s.launcher.Start(ctx, "xdg-open", path); err != nil {
		return capability.Fail("I couldn't open %s", name)
	}
	return capability.OK("Opening %s", name)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

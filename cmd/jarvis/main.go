// Command jarvis is the main entry point for the jarvis voice assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		return 1
	}
	return 0
}

// ── CLI ───────────────────────────────────────────────────────────────────────

// cli carries the state shared by every subcommand: persistent flags and the
// configuration loaded in the root's PersistentPreRunE.
type cli struct {
	configPath string
	envFile    string
	logLevel   string

	cfg   *config.Config
	level *slog.LevelVar
	logs  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{level: new(slog.LevelVar)}
	root := &cobra.Command{
		Use:           "jarvis",
		Short:         "Voice-controlled desktop assistant",
		Long:          "jarvis listens for a wake phrase, resolves spoken commands into intents and carries them out.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logs != nil {
				_ = c.logs.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		c.serveCmd(),
		c.askCmd(),
		c.enrollCmd(),
		c.mcpCmd(),
		versionCmd(),
	)
	return root
}

// setup loads the environment and configuration and installs the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", c.envFile, err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(c.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", c.configPath)
	case err != nil:
		return err
	}
	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	c.cfg = cfg

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, closer := newLogger(cfg.Server, c.level)
	c.logs = closer
	slog.SetDefault(logger)
	slog.Debug("configuration loaded", "config", c.configPath, "defaults", err != nil)
	return nil
}

// newApp builds the providers and the application for a subcommand.
func (c *cli) newApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(c.cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	opts = append([]app.Option{app.WithLogLevel(c.level)}, opts...)
	a, err := app.New(ctx, c.cfg, providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	return a, nil
}

// shutdown gives the application a bounded amount of time to stop.
func shutdown(a *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.Shutdown(ctx)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to stderr and, when sc.LogFile is set, tees them
// into a size-rotated file. The returned closer is nil without a log file.
func newLogger(sc config.ServerConfig, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	level.Set(sc.LogLevel.SlogLevel())
	var w io.Writer = os.Stderr
	var closer io.Closer
	if sc.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   sc.LogFile,
			MaxSize:    sc.LogMaxSizeMB,
			MaxBackups: sc.LogMaxBackups,
			LocalTime:  true,
		}
		w = io.MultiWriter(os.Stderr, file)
		closer = file
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/mcpserver"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/speech"
)

// ── serve ─────────────────────────────────────────────────────────────────────

func (c *cli) serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wake loop and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// ── Observability ─────────────────────────────────────────────────
			shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTelemetry(sctx); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()

			var opts []app.Option
			if watch && fileExists(c.configPath) {
				opts = append(opts, app.WithConfigWatch(c.configPath))
			}
			a, err := c.newApp(ctx, opts...)
			if err != nil {
				return err
			}

			// SIGHUP re-reads the config file without waiting for the next poll.
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						if err := a.ReloadConfig(); err != nil {
							slog.Warn("config reload failed", "err", err)
						}
					}
				}
			}()

			printStartupSummary(c.cfg, a)
			slog.Info("jarvis starting", "version", version, "config", c.configPath)

			runErr := a.Run(ctx)
			if runErr != nil && errors.Is(runErr, context.Canceled) {
				runErr = nil
			}

			// ── Graceful shutdown ─────────────────────────────────────────────
			slog.Info("stopping")
			if err := shutdown(a); err != nil {
				return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
			}
			slog.Info("goodbye")
			return runErr
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "hot-reload wake phrases, exit phrases and log level from the config file")
	return cmd
}

// ── ask ───────────────────────────────────────────────────────────────────────

func (c *cli) askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <command...>",
		Short: "Resolve a single text command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context(), app.WithSpeaker(speech.NewConsoleSpeaker(os.Stderr, c.cfg.Assistant.Name)))
			if err != nil {
				return err
			}
			defer shutdown(a)

			resp := a.Ask(cmd.Context(), strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, resp.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response including the resolved intent")
	return cmd
}

// ── enroll ────────────────────────────────────────────────────────────────────

func (c *cli) enrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll",
		Short: "Record a voice profile for authenticating sensitive commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(a)

			if err := a.Enroll(cmd.Context()); err != nil {
				return fmt.Errorf("enroll: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Voice profile enrolled.")
			return nil
		},
	}
}

// ── mcp ───────────────────────────────────────────────────────────────────────

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve jarvis as an MCP tool server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol; spoken output without TTS goes to stderr.
			a, err := c.newApp(cmd.Context(), app.WithSpeaker(speech.NewConsoleSpeaker(os.Stderr, c.cfg.Assistant.Name)))
			if err != nil {
				return err
			}
			defer shutdown(a)

			err = mcpserver.Serve(cmd.Context(), a.MCPServer(version))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// ── version ───────────────────────────────────────────────────────────────────

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// The version needs neither configuration nor logging.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "jarvis", version)
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, a *app.App) {
	w := os.Stderr
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         jarvis · startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	printProvider("Storage", string(cfg.Storage.Driver), "")
	printRow("Wake loop", enabled(a.Loop() != nil))
	printRow("Wake phrases", fmt.Sprintf("%d", len(cfg.Assistant.WakePhrases)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("HTTP API", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-14s  : %-19s ║\n", label, value)
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "(disabled)"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

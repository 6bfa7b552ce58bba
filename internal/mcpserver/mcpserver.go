// Package mcpserver exposes the assistant as a Model Context Protocol server
// so that other agents can send it commands and manage timers.
//
// Tools:
//
//   - ask: run a text command through the orchestrator
//   - set_timer, list_timers, cancel_timer: manage countdown timers
//   - list_capabilities: enumerate the registered intent/action pairs
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/jarvis/internal/capability"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/timer"
)

// Commander resolves a text command.
type Commander interface {
	HandleUtterance(ctx context.Context, text string) orchestrator.Response
}

// Timers is the timer service surface exposed as tools.
type Timers interface {
	Set(d time.Duration, label string) (timer.Entry, error)
	List() []timer.Status
	Cancel(id uint64) (timer.Entry, error)
	CancelLatest() (timer.Entry, error)
}

// Capabilities lists registered capabilities.
type Capabilities interface {
	Keys() []capability.Key
}

// ── Tool inputs and outputs ──────────────────────────────────────────────────

type askInput struct {
	Text string `json:"text" jsonschema:"the command, phrased as it would be spoken"`
}

type askOutput struct {
	Response   string         `json:"response"`
	Success    bool           `json:"success"`
	Source     string         `json:"source"`
	Intent     string         `json:"intent,omitempty"`
	Action     string         `json:"action,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type setTimerInput struct {
	Duration string `json:"duration" jsonschema:"timer length, e.g. 90s or 5 minutes"`
	Label    string `json:"label,omitempty" jsonschema:"optional name announced when the timer finishes"`
}

type timerOutput struct {
	ID               uint64  `json:"id"`
	Label            string  `json:"label"`
	Remaining        string  `json:"remaining"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

type listTimersOutput struct {
	Timers []timerOutput `json:"timers"`
}

type cancelTimerInput struct {
	ID uint64 `json:"id,omitempty" jsonschema:"timer to cancel; omit to cancel the most recent one"`
}

type capabilitiesOutput struct {
	Capabilities []string `json:"capabilities"`
}

// ── Server ───────────────────────────────────────────────────────────────────

// Config names the server in the MCP handshake.
type Config struct {
	Name    string
	Version string
}

// New builds an MCP server. timers and caps may be nil, in which case their
// tools are not registered.
func New(cmd Commander, timers Timers, caps Capabilities, cfg Config) *mcp.Server {
	if cfg.Name == "" {
		cfg.Name = "jarvis"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "ask",
		Description: "Send a command to the voice assistant and return its reply.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, askOutput, error) {
		resp := cmd.HandleUtterance(ctx, in.Text)
		out := askOutput{
			Response:   resp.Text,
			Success:    resp.Success,
			Source:     string(resp.Source),
			Intent:     resp.Record.Intent,
			Action:     resp.Record.Action,
			Parameters: resp.Record.Parameters,
		}
		return textResult(resp.Text), out, nil
	})

	if timers != nil {
		addTimerTools(s, timers)
	}

	if caps != nil {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "list_capabilities",
			Description: "List the intent/action pairs the assistant can carry out.",
		}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, capabilitiesOutput, error) {
			keys := caps.Keys()
			out := capabilitiesOutput{Capabilities: make([]string, len(keys))}
			for i, k := range keys {
				out.Capabilities[i] = k.String()
			}
			return nil, out, nil
		})
	}
	return s
}

func addTimerTools(s *mcp.Server, timers Timers) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "set_timer",
		Description: "Start a countdown timer.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in setTimerInput) (*mcp.CallToolResult, timerOutput, error) {
		d, err := parseDuration(in.Duration)
		if err != nil {
			return nil, timerOutput{}, err
		}
		e, err := timers.Set(d, in.Label)
		if err != nil {
			return nil, timerOutput{}, err
		}
		out := entryOutput(e)
		return textResult(fmt.Sprintf("Timer set for %s.", out.Remaining)), out, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_timers",
		Description: "List active timers with their remaining time.",
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, listTimersOutput, error) {
		list := timers.List()
		out := listTimersOutput{Timers: make([]timerOutput, len(list))}
		for i, st := range list {
			out.Timers[i] = timerOutput{
				ID:               st.ID,
				Label:            st.Label,
				Remaining:        timer.FormatDuration(st.Remaining),
				RemainingSeconds: st.Remaining.Seconds(),
			}
		}
		return nil, out, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cancel_timer",
		Description: "Cancel a timer by ID, or the most recently started one.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in cancelTimerInput) (*mcp.CallToolResult, timerOutput, error) {
		var (
			e   timer.Entry
			err error
		)
		if in.ID == 0 {
			e, err = timers.CancelLatest()
		} else {
			e, err = timers.Cancel(in.ID)
		}
		if err != nil {
			return nil, timerOutput{}, err
		}
		return textResult(fmt.Sprintf("Cancelled %s.", e.Label)), entryOutput(e), nil
	})
}

// Serve runs s on stdin/stdout until the client disconnects or ctx is done.
func Serve(ctx context.Context, s *mcp.Server) error {
	if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func entryOutput(e timer.Entry) timerOutput {
	return timerOutput{
		ID:               e.ID,
		Label:            e.Label,
		Remaining:        timer.FormatDuration(e.Duration),
		RemainingSeconds: e.Duration.Seconds(),
	}
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return d, nil
	}
	if d, ok := timer.ParseDuration(s); ok {
		return d, nil
	}
	return 0, fmt.Errorf("cannot parse duration %q", s)
}

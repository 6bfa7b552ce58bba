package builtin

import (
	"context"

	"github.com/MrWong99/jarvis/internal/capability"
)

type mediaCommand struct {
	name  string
	args  []string
	reply string
}

// mediaCommands maps media_control actions to playerctl and pactl calls.
var mediaCommands = map[string]mediaCommand{
	"play_pause":     {"playerctl", []string{"play-pause"}, "Toggled playback"},
	"next_track":     {"playerctl", []string{"next"}, "Skipping to the next track"},
	"previous_track": {"playerctl", []string{"previous"}, "Going back to the previous track"},
	"volume_up":      {"pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", "+10%"}, "Volume up"},
	"volume_down":    {"pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", "-10%"}, "Volume down"},
	"mute":           {"pactl", []string{"set-sink-mute", "@DEFAULT_SINK@", "toggle"}, "Toggled mute"},
}

type media struct {
	launcher Launcher
}

func (m *media) handler(action string) capability.Handler {
	cmd := mediaCommands[action]
	return func(ctx context.Context, _ capability.Request) capability.Result {
		if err := m.launcher.Run(ctx, cmd.name, cmd.args...); err != nil {
			return capability.Fail("I couldn't control media playback")
		}
		return capability.OK("%s", cmd.reply)
	}
}

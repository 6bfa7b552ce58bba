package builtin

import (
	"context"

	"github.com/MrWong99/jarvis/internal/capability"
)

func help(name string) capability.Handler {
	return func(context.Context, capability.Request) capability.Result {
		return capability.OK("I'm %s. I can tell you the time and date, set and cancel timers, "+
			"do calculations and unit conversions, open applications and folders, search the web, "+
			"check the weather and control your music. Just say my name followed by a command.", name)
	}
}

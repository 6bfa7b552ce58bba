package builtin

import (
	"context"
	"time"

	"github.com/MrWong99/jarvis/internal/capability"
)

type clock struct {
	now func() time.Time
}

func (c *clock) getTime(context.Context, capability.Request) capability.Result {
	return capability.OK("It's %s", c.now().Format("3:04 PM"))
}

func (c *clock) getDate(context.Context, capability.Request) capability.Result {
	return capability.OK("Today is %s", c.now().Format("Monday, January 2, 2006"))
}

package console

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/presentation"
	"reminderd/internal/reminder"
)

type Verb string

const (
	VerbNone     Verb = ""
	VerbComplete Verb = "complete"
	VerbDismiss  Verb = "dismiss"
	VerbSnooze   Verb = "snooze"
	VerbList     Verb = "list"
	VerbHelp     Verb = "help"
)

const helpText = "commands: c <id> complete, d <id> dismiss, s <id> [10m|1h|2d] snooze, list, help"

type Command struct {
	Verb       Verb
	ReminderID string
	// Delay is zero when the snooze should use the default.
	Delay time.Duration
}

// Action maps the verb to a reminder action; empty for non-action verbs.
func (c Command) Action() reminder.Action {
	switch c.Verb {
	case VerbComplete:
		return reminder.ActionComplete
	case VerbDismiss:
		return reminder.ActionDismiss
	case VerbSnooze:
		return reminder.ActionSnooze
	}
	return ""
}

// ParseCommand parses one console line. Blank lines yield VerbNone.
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return Command{}, nil
	}
	var verb Verb
	switch strings.ToLower(f[0]) {
	case "c", "done", "complete":
		verb = VerbComplete
	case "d", "dismiss":
		verb = VerbDismiss
	case "s", "snooze":
		verb = VerbSnooze
	case "l", "ls", "list":
		return Command{Verb: VerbList}, nil
	case "h", "?", "help":
		return Command{Verb: VerbHelp}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", f[0])
	}
	if len(f) < 2 {
		return Command{}, fmt.Errorf("%s needs a reminder id", verb)
	}
	cmd := Command{Verb: verb, ReminderID: f[1]}
	switch {
	case verb == VerbSnooze && len(f) == 3:
		d, err := presentation.ParseDelay(f[2])
		if err != nil {
			return Command{}, err
		}
		cmd.Delay = d
	case len(f) > 2:
		return Command{}, fmt.Errorf("too many arguments for %s", verb)
	}
	return cmd, nil
}

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned by every command once hub creation failed
	ErrDisabled = errors.New("bridge disabled")
	// ErrUnknownCommand is wrapped by CommandError for unrecognized commands
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandError reports a command issued with missing or invalid arguments.
// Such commands are no-ops.
type CommandError struct {
	Command string
	Msg     string
	Err     error
}

func (e *CommandError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Command, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	default:
		return fmt.Sprintf("%s: invalid command", e.Command)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

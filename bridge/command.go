package bridge

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Commands accepted by Exec
const (
	CmdConnect    = "connect"
	CmdDisconnect = "disconnect"
	CmdInfo       = "info"
	CmdDevices    = "devices"
	CmdBang       = "bang"
	CmdVibrate    = "vibrate"
	CmdStream     = "stream"
	CmdEmg        = "emg"
	CmdUnlock     = "unlock"
	CmdDevice     = "device"
)

// Exec runs one command line, see ExecContext
func (b *Bridge) Exec(line string) error {
	return b.ExecContext(context.Background(), line)
}

// ExecContext runs one whitespace separated command line:
//
//	connect | disconnect | info | devices | bang
//	vibrate [0|1|2|short|medium|long]
//	stream <0|1> | emg <0|1> | unlock <0|1>
//	device <name|auto>
//
// Blank lines are ignored. Invalid commands are no-ops: the returned
// *CommandError is also reported on the info channel. ctx bounds the session
// started by connect.
func (b *Bridge) ExecContext(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if err := b.check(); err != nil {
		return err
	}

	cmd, args := fields[0], fields[1:]
	err := b.dispatch(ctx, cmd, args)

	var cerr *CommandError
	if errors.As(err, &cerr) {
		b.logger.WithError(err).Warn("Invalid command")
		b.session.Lock()
		b.emitError(err)
		b.session.Unlock()
	}
	return err
}

func (b *Bridge) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case CmdConnect:
		if err := noArgs(cmd, args); err != nil {
			return err
		}
		return b.Connect(ctx)

	case CmdDisconnect:
		if err := noArgs(cmd, args); err != nil {
			return err
		}
		b.Disconnect()

	case CmdInfo:
		if err := noArgs(cmd, args); err != nil {
			return err
		}
		b.RequestInfo()

	case CmdDevices:
		if err := noArgs(cmd, args); err != nil {
			return err
		}
		b.DumpDevices()

	case CmdBang:
		if err := noArgs(cmd, args); err != nil {
			return err
		}
		b.EmitOnDemand()

	case CmdVibrate:
		switch len(args) {
		case 0:
			b.Vibrate("")
		case 1:
			b.Vibrate(args[0])
		default:
			return &CommandError{Command: cmd, Msg: "expects at most one pattern"}
		}

	case CmdStream, CmdEmg, CmdUnlock:
		enabled, err := switchArg(cmd, args)
		if err != nil {
			return err
		}
		switch cmd {
		case CmdStream:
			b.SetStream(enabled)
		case CmdEmg:
			b.SetEmgPolicy(enabled)
		case CmdUnlock:
			b.SetUnlockPolicy(enabled)
		}

	case CmdDevice:
		if len(args) == 0 {
			return &CommandError{Command: cmd, Msg: "expects a device name or auto"}
		}
		// names may contain spaces
		b.SetDeviceSelector(strings.Join(args, " "))

	default:
		return &CommandError{Command: cmd, Err: ErrUnknownCommand}
	}
	return nil
}

func noArgs(cmd string, args []string) error {
	if len(args) > 0 {
		return &CommandError{Command: cmd, Msg: "takes no arguments"}
	}
	return nil
}

// switchArg reads an on/off argument as a number: any nonzero value is on
func switchArg(cmd string, args []string) (bool, error) {
	if len(args) != 1 {
		return false, &CommandError{Command: cmd, Msg: "expects 0 or 1"}
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return false, &CommandError{Command: cmd, Msg: "expects 0 or 1", Err: err}
	}
	return v != 0, nil
}

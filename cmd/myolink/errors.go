package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/myolink/bridge"
	"github.com/srg/myolink/internal/hubfactory"
	"github.com/srg/myolink/internal/myo"
)

// Command-level errors
var (
	// ErrNoDevices indicates the hub reported no connected armband before the wait elapsed
	ErrNoDevices = errors.New("no devices connected")
)

// FormatUserError turns internal errors into short actionable messages
func FormatUserError(err error) string {
	var cmdErr *bridge.CommandError

	switch {
	case errors.Is(err, myo.ErrUnsupportedDriver):
		return fmt.Sprintf("%v (supported drivers: %s)", err, hubfactory.DriverSim)
	case errors.Is(err, hubfactory.ErrInvalidApplicationID):
		return fmt.Sprintf("%v (expected a reverse domain name such as %s)", err, hubfactory.DefaultApplicationID)
	case errors.Is(err, bridge.ErrDisabled):
		return fmt.Sprintf("%v; check the hub section of the configuration", err)
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("invalid command %q: %v", cmdErr.Command, err)
	case errors.Is(err, ErrNoDevices):
		return "no armband connected; check the hub configuration or increase --wait"
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("file not found: %v", err)
	default:
		return err.Error()
	}
}

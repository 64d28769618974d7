package myo

import (
	"errors"
	"fmt"
)

// Hub errors
var (
	ErrHubUnavailable    = errors.New("hub unavailable")
	ErrHubClosed         = errors.New("hub closed")
	ErrUnsupportedDriver = errors.New("unsupported hub driver")
)

// HubError wraps a failure raised by the vendor SDK during an operation
type HubError struct {
	Op  string // "create", "run", ...
	Err error
}

func (e *HubError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("hub %s failed", e.Op)
	}
	return fmt.Sprintf("hub %s failed: %v", e.Op, e.Err)
}

func (e *HubError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsHubOp reports whether err is a HubError raised by the given operation
func IsHubOp(err error, op string) bool {
	var herr *HubError
	if errors.As(err, &herr) {
		return herr.Op == op
	}
	return false
}

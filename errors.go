package serial

import (
	"errors"
	"fmt"
)

// Reasons reported by OpenError. Test with errors.Is.
var (
	ErrPortNotFound     = errors.New("port not found")
	ErrPortBusy         = errors.New("port busy")
	ErrPermissionDenied = errors.New("permission denied")
)

// ErrClosed is returned by operations on a port that has been closed.
var ErrClosed = errors.New("serial: port closed")

// OpenError reports that the device could not be opened at all.
type OpenError struct {
	Device string
	Reason error // one of ErrPortNotFound, ErrPortBusy, ErrPermissionDenied, or nil
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() []error {
	if e.Reason == nil {
		return []error{e.Err}
	}
	return []error{e.Reason, e.Err}
}

// ConfigError reports a failure reading or committing line settings.
type ConfigError struct {
	Device string
	Op     string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TimeoutOverrideError reports that the device timeouts could not be set.
// Only the Windows port produces it.
type TimeoutOverrideError struct {
	Device string
	Err    error
}

func (e *TimeoutOverrideError) Error() string {
	return fmt.Sprintf("set timeouts %s: %v", e.Device, e.Err)
}

func (e *TimeoutOverrideError) Unwrap() error { return e.Err }

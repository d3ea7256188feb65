package driver

import (
	"fmt"
	"time"
)

// OpenError reports that a backend could not acquire its underlying
// system resource. It is fatal to selecting that backend only; another
// backend may still be usable and a running server is never affected.
type OpenError struct {
	Backend string
	Path    string
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("driver: open %s backend at %q: %v", e.Backend, e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// IoctlError reports a device-control system call that returned a
// failure. It carries the underlying error code so operators can map it
// back to the kernel driver.
type IoctlError struct {
	Op  string
	Err error
}

func (e *IoctlError) Error() string {
	return fmt.Sprintf("driver: ioctl %s: %v", e.Op, e.Err)
}

func (e *IoctlError) Unwrap() error { return e.Err }

// TimeoutError reports an exhausted polling budget while waiting on a
// hardware status flag. Kept distinct from IoctlError so "hardware
// broken" and "hardware slow" remain tellable apart in logs.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("driver: %s: hardware not ready after %v", e.Op, e.Elapsed)
}

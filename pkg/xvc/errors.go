package xvc

import (
	"errors"
	"fmt"
)

// ErrInvalidInfo reports a capability string that does not follow the
// xvcServer_v<version>:<value> format.
var ErrInvalidInfo = errors.New("xvc: malformed info string")

// CommandError reports bytes that do not match any of the known command
// literals. The match is exact and case-sensitive; a single wrong byte
// is fatal to the connection, not recoverable.
type CommandError struct {
	Got string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("xvc: invalid command %q", e.Got)
}

// VectorTooLargeError reports a shift whose declared bit count would
// require more vector bytes than the configured safety ceiling. The
// payload is rejected before any allocation or read.
type VectorTooLargeError struct {
	Max int
	Got int
}

func (e *VectorTooLargeError) Error() string {
	return fmt.Sprintf("xvc: shift vector of %d bytes exceeds maximum of %d", e.Got, e.Max)
}

// UnsupportedVersionError reports a server speaking a protocol revision
// this package does not implement.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("xvc: unsupported protocol version %q", e.Version)
}

// Package version implements the ws3ds protocol version handshake.
//
// After the WebSocket opens, the device may announce its protocol version as
// a text message of exactly two space-separated tokens:
//
//	VERSION 1.0
//
// The client compares the announced version to Current by exact string
// match. A mismatch is fatal for the session. Absence of a VERSION message is
// tolerated, and any other text is application data.
package version

import (
	"errors"
	"fmt"
	"strings"
)

// Current is the protocol version implemented by this client.
const Current = "1.0"

// ControlTag is the first token of a version control message.
const ControlTag = "VERSION"

// ErrIncompatible is returned when the device announces a different version.
var ErrIncompatible = errors.New("incompatible protocol version")

// MismatchError names both sides of a failed version check.
type MismatchError struct {
	Local  string
	Remote string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: device=%s, client=%s", ErrIncompatible, e.Remote, e.Local)
}

// Unwrap allows errors.Is(err, ErrIncompatible).
func (e *MismatchError) Unwrap() error {
	return ErrIncompatible
}

// ParseControl extracts the remote version from a VERSION control message.
// ok is false when msg is not a control message.
func ParseControl(msg string) (remote string, ok bool) {
	parts := strings.Split(msg, " ")
	if len(parts) != 2 || parts[0] != ControlTag {
		return "", false
	}
	return parts[1], true
}

// FormatControl returns the control message announcing v.
func FormatControl(v string) string {
	return ControlTag + " " + v
}

// Check compares a remote version to local. Equality is exact.
func Check(local, remote string) error {
	if remote != local {
		return &MismatchError{Local: local, Remote: remote}
	}
	return nil
}

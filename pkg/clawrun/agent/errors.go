// Package agent – errors.go defines the control-flow errors that cross
// component boundaries: session completion (unwinds the turn loop) and user
// interruption (preserves partial output).
package agent

import (
	"errors"
	"fmt"
)

// InterruptContent is the marker appended to the log when the user interrupts
// a generation or a running tool. Partial output is preserved alongside it.
const InterruptContent = "Interrupted by user"

// SessionCompleteError signals that the session is finished. It is the one
// error hook dispatch never swallows: it unwinds to the top of the turn loop
// and ends the session cleanly.
type SessionCompleteError struct {
	Reason string
}

func (e *SessionCompleteError) Error() string {
	if e.Reason == "" {
		return "session complete"
	}
	return fmt.Sprintf("session complete: %s", e.Reason)
}

// IsSessionComplete reports whether err is (or wraps) a SessionCompleteError.
func IsSessionComplete(err error) bool {
	var sc *SessionCompleteError
	return errors.As(err, &sc)
}

// ErrInterrupted is returned by blocking operations cancelled by the user.
var ErrInterrupted = errors.New("interrupted by user")

// ErrConfirmationTimeout is returned when a pending confirmation or
// elicitation is never resolved within the rendezvous window.
var ErrConfirmationTimeout = errors.New("confirmation timed out")

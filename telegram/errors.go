package telegram

import (
	"errors"
	"fmt"
)

// SessionError indicates the authenticated session is invalid or expired.
// It is the signal for the connection manager's reconnect-and-retry-once
// path; anything else is either transient or a plain failure.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("telegram: session invalid during %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// TransientError indicates a generic network hiccup: worth retrying at the
// next scheduled cycle, not worth burning a reconnect on.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("telegram: transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsSessionError reports whether err carries an invalid-session condition.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// IsTransient reports whether err is a generic transient transport failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrReconnectExhausted is returned once the manager has burned through all
// reconnect attempts. It is fatal for the process: callers must stop, not
// retry in a tight loop.
var ErrReconnectExhausted = errors.New("telegram: reconnect attempts exhausted")

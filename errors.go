package enrf

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("enrf: port closed")
	ErrInvalidPortName = errors.New("enrf: invalid port name")
	ErrReadTimeout     = errors.New("enrf: read timeout")
	ErrNoEvent         = errors.New("enrf: no event within timeout")
	ErrScanTimeout     = errors.New("enrf: scan timed out")
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("enrf: transport failure")

	// ErrSessionEnded matches every *SessionEndedError, whatever its kind.
	ErrSessionEnded = errors.New("enrf: session ended")

	ErrProtocolTimeout      = errors.New("enrf: response timeout")
	ErrProtocolError        = errors.New("enrf: peripheral reported an error")
	ErrUnexpectedDisconnect = errors.New("enrf: peripheral has disconnected")
)

// TransportError reports a failure of the underlying serial channel. The
// channel cannot carry any further traffic once one is returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("enrf: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// EndKind tells why a session ended.
type EndKind int

const (
	ProtocolTimeout EndKind = iota + 1
	ProtocolError
	UnexpectedDisconnect
)

func (k EndKind) String() string {
	switch k {
	case ProtocolTimeout:
		return "protocol-timeout"
	case ProtocolError:
		return "protocol-error"
	case UnexpectedDisconnect:
		return "unexpected-disconnect"
	default:
		return "unknown"
	}
}

func (k EndKind) sentinel() error {
	switch k {
	case ProtocolTimeout:
		return ErrProtocolTimeout
	case ProtocolError:
		return ErrProtocolError
	case UnexpectedDisconnect:
		return ErrUnexpectedDisconnect
	default:
		return nil
	}
}

// SessionEndedError is returned by Session operations when the exchange with
// the peripheral cannot continue. Line holds the offending line, if any, and
// Code the reason code of a disconnect status.
type SessionEndedError struct {
	Kind    EndKind
	Command string
	Line    string
	Code    string
}

func (e *SessionEndedError) Error() string {
	switch e.Kind {
	case ProtocolError:
		return fmt.Sprintf("%v: %s", ErrProtocolError, e.Line)
	case UnexpectedDisconnect:
		if e.Code != "" {
			return fmt.Sprintf("%v (reason %s)", ErrUnexpectedDisconnect, e.Code)
		}
		return ErrUnexpectedDisconnect.Error()
	case ProtocolTimeout:
		if e.Command != "" {
			return fmt.Sprintf("%v waiting for %q", ErrProtocolTimeout, e.Command)
		}
		return ErrProtocolTimeout.Error()
	default:
		return ErrSessionEnded.Error()
	}
}

func (e *SessionEndedError) Is(target error) bool {
	return target == ErrSessionEnded || (target != nil && target == e.Kind.sentinel())
}

func sessionEnded(kind EndKind, cmd, line, code string) *SessionEndedError {
	return &SessionEndedError{Kind: kind, Command: cmd, Line: line, Code: code}
}

package enrf

import (
	"context"
	"time"

	gobug "go.bug.st/serial"
)

// Transport is a duplex, line-oriented channel to the peripheral. A Session
// is its only user, so implementations need not be safe for concurrent use.
type Transport interface {
	// WriteLine writes line followed by a newline. All bytes are written or
	// an error is returned.
	WriteLine(line string) error

	// ReadLine returns the next whole line without its terminator. It
	// returns ErrReadTimeout when no line completes within the timeout set
	// by SetReadTimeout, and ctx.Err() once ctx is done.
	ReadLine(ctx context.Context) (string, error)

	// SetReadTimeout changes the deadline applied to subsequent ReadLine calls.
	SetReadTimeout(d time.Duration) error

	// Close releases the channel. It is safe to call multiple times.
	Close() error
}

// portHandle abstracts the subset of go.bug.st/serial.Port used by Port.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(d time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	ResetInputBuffer() error
}

// allow tests to override external dependencies
var (
	openPort = func(name string, mode *gobug.Mode) (portHandle, error) { return gobug.Open(name, mode) }
)

package enrf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/atomic"
)

const (
	// MaxLineSize bounds a single line. Longer lines are dropped.
	MaxLineSize = 4096

	readChunkSize = 256

	// pollInterval caps a single device read so cancellation is noticed
	// while a long reply timeout is running.
	pollInterval = 100 * time.Millisecond
)

// Port is the Transport backed by a serial device.
type Port struct {
	handle portHandle
	name   string

	timeout time.Duration
	poll    time.Duration

	buf     []byte
	pending []byte
	// overflow is set while the rest of a dropped oversized line is still
	// arriving.
	overflow bool

	closed atomic.Bool
}

var _ Transport = (*Port)(nil)

// OpenPort opens and configures the serial device described by cfg.
func OpenPort(cfg PortConfig) (*Port, error) {
	if err := ValidatePortConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid serial port configuration: %w", err)
	}
	if !isValidPortPattern(cfg.Name) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPortName, cfg.Name)
	}

	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	h, err := openPort(cfg.Name, mode)
	if err != nil {
		return nil, &TransportError{Op: "open " + cfg.Name, Err: err}
	}

	if err = h.SetDTR(cfg.DTR); err != nil {
		return nil, closeOnOpenError(h, err)
	}
	if err = h.SetRTS(cfg.RTS); err != nil {
		return nil, closeOnOpenError(h, err)
	}
	// Drop whatever the peripheral printed before we attached.
	if err = h.ResetInputBuffer(); err != nil {
		return nil, closeOnOpenError(h, err)
	}

	p := newPort(h, cfg.Name)
	if err = p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return nil, errors.Join(err, h.Close())
	}
	return p, nil
}

// closeOnOpenError closes the handle and joins any error from closing with
// the original error.
func closeOnOpenError(h portHandle, err error) error {
	err = &TransportError{Op: "configure", Err: err}
	if e := h.Close(); e != nil {
		return errors.Join(err, e)
	}
	return err
}

// newPort constructs a Port around an existing handle.
func newPort(h portHandle, name string) *Port {
	return &Port{
		handle:  h,
		name:    name,
		timeout: DefaultReplyTimeout,
		buf:     make([]byte, readChunkSize),
	}
}

// Name returns the device path the port was opened on.
func (p *Port) Name() string { return p.name }

// WriteLine implements Transport.
func (p *Port) WriteLine(line string) error {
	if p.closed.Load() {
		return ErrClosed
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	data := []byte(line)

	written := 0
	for written < len(data) {
		n, err := p.handle.Write(data[written:])
		if err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		if n == 0 {
			return &TransportError{Op: "write", Err: errors.New("short write")}
		}
		written += n
	}
	return nil
}

// ReadLine implements Transport.
func (p *Port) ReadLine(ctx context.Context) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}

	deadline := time.Now().Add(p.timeout)
	for {
		if line, ok := p.nextLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}

		n, err := p.handle.Read(p.buf)
		if err != nil {
			if p.closed.Load() {
				return "", ErrClosed
			}
			return "", &TransportError{Op: "read", Err: err}
		}
		if n == 0 {
			// go.bug.st/serial reports an expired read timeout as (0, nil).
			continue
		}

		p.pending = append(p.pending, p.buf[:n]...)
		if len(p.pending) > MaxLineSize && bytes.IndexByte(p.pending, '\n') == -1 {
			p.pending = p.pending[:0]
			p.overflow = true
		}
	}
}

// nextLine pops one complete line off the pending buffer.
func (p *Port) nextLine() (string, bool) {
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx == -1 {
			return "", false
		}
		drop := p.overflow || idx > MaxLineSize
		line := strings.TrimRight(string(p.pending[:idx]), "\r")

		n := copy(p.pending, p.pending[idx+1:])
		p.pending = p.pending[:n]

		if drop {
			p.overflow = false
			continue
		}
		return line, true
	}
}

// SetReadTimeout implements Transport. A non-positive d selects
// DefaultReplyTimeout.
func (p *Port) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		d = DefaultReplyTimeout
	}
	p.timeout = d

	poll := pollInterval
	if d < poll {
		poll = d
	}
	if poll == p.poll {
		return nil
	}
	if err := p.handle.SetReadTimeout(poll); err != nil {
		return &TransportError{Op: "set read timeout", Err: err}
	}
	p.poll = poll
	return nil
}

// Close implements Transport.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.handle.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

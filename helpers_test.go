package enrf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobug "go.bug.st/serial"
)

// fakeTransport is a scripted peripheral. Writing a command queues the lines
// registered for it with on(). Queue items are a line (string), an error
// returned from ReadLine, or a func() run when the item is reached.
type fakeTransport struct {
	replies  map[string][]any
	queue    []any
	writes   []string
	timeouts []time.Duration
	log      *[]string

	writeErr error
	closed   bool
}

func newFakeTransport() *fakeTransport {
	var log []string
	return &fakeTransport{replies: map[string][]any{}, log: &log}
}

// on registers what the peripheral prints after cmd is written.
func (f *fakeTransport) on(cmd string, items ...any) *fakeTransport {
	f.replies[cmd] = items
	return f
}

// push queues unsolicited items.
func (f *fakeTransport) push(items ...any) { f.queue = append(f.queue, items...) }

func (f *fakeTransport) record(entry string) { *f.log = append(*f.log, entry) }

func (f *fakeTransport) WriteLine(line string) error {
	if f.closed {
		return ErrClosed
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, line)
	f.record("write " + line)
	f.queue = append(f.queue, f.replies[line]...)
	return nil
}

func (f *fakeTransport) ReadLine(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(f.queue) == 0 {
			return "", ErrReadTimeout
		}
		item := f.queue[0]
		f.queue = f.queue[1:]
		switch v := item.(type) {
		case string:
			return v, nil
		case error:
			return "", v
		case func():
			v()
		}
	}
}

func (f *fakeTransport) SetReadTimeout(d time.Duration) error {
	f.timeouts = append(f.timeouts, d)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// fakeClock replaces now for the duration of a test.
type fakeClock struct {
	t time.Time
}

func useFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	c := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	prev := now
	now = func() time.Time { return c.t }
	t.Cleanup(func() { now = prev })
	return c
}

func (c *fakeClock) advance(d time.Duration) func() {
	return func() { c.t = c.t.Add(d) }
}

// mockPort implements portHandle for Port tests.
type mockPort struct {
	mu sync.Mutex

	chunks [][]byte
	writes [][]byte

	// maxWrite caps the bytes accepted per Write when positive.
	maxWrite int
	// zeroWrite makes Write accept nothing.
	zeroWrite bool
	// blocking makes an empty Read wait out the configured read timeout
	// like a real device does.
	blocking bool

	readErr  error
	writeErr error
	closeErr error
	dtrErr   error

	// onWrite lets a test answer commands like a device would.
	onWrite func(m *mockPort, line []byte)

	readTimeouts []time.Duration
	dtr, rts     bool
	resets       int
	closed       bool
}

func (m *mockPort) feed(s ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range s {
		m.chunks = append(m.chunks, []byte(c))
	}
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.chunks) == 0 {
		wait := time.Millisecond
		if m.blocking && len(m.readTimeouts) > 0 {
			wait = m.readTimeouts[len(m.readTimeouts)-1]
		}
		m.mu.Unlock()
		// behave like an expired serial read timeout
		time.Sleep(wait)
		return 0, nil
	}
	c := m.chunks[0]
	n := copy(p, c)
	if n < len(c) {
		m.chunks[0] = c[n:]
	} else {
		m.chunks = m.chunks[1:]
	}
	m.mu.Unlock()
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.writeErr != nil {
		m.mu.Unlock()
		return 0, m.writeErr
	}
	if m.zeroWrite {
		m.mu.Unlock()
		return 0, nil
	}
	n := len(p)
	if m.maxWrite > 0 && n > m.maxWrite {
		n = m.maxWrite
	}
	cp := make([]byte, n)
	copy(cp, p[:n])
	m.writes = append(m.writes, cp)
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(m, cp)
	}
	return n, nil
}

func (m *mockPort) written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, w := range m.writes {
		out = append(out, w...)
	}
	return string(out)
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}

func (m *mockPort) SetReadTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeouts = append(m.readTimeouts, d)
	return nil
}

func (m *mockPort) SetDTR(dtr bool) error {
	if m.dtrErr != nil {
		return m.dtrErr
	}
	m.dtr = dtr
	return nil
}

func (m *mockPort) SetRTS(rts bool) error {
	m.rts = rts
	return nil
}

func (m *mockPort) ResetInputBuffer() error {
	m.resets++
	return nil
}

// useMockPort makes OpenPort hand out m.
func useMockPort(t *testing.T, m *mockPort) {
	t.Helper()
	prev := openPort
	openPort = func(string, *gobug.Mode) (portHandle, error) { return m, nil }
	t.Cleanup(func() { openPort = prev })
}

var errBoom = errors.New("boom")

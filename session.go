package enrf

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// allow tests to override the clock used for reply deadlines
var now = time.Now

// Session mediates every exchange with the peripheral and tracks the
// connection state as a side effect of the lines it reads. It owns its
// Transport exclusively and is not safe for concurrent use.
type Session struct {
	transport Transport
	debug     bool
	state     ConnState

	// timeout is the deadline of the exchange in progress.
	timeout        time.Duration
	replyTimeout   time.Duration
	connectTimeout time.Duration

	log     zerolog.Logger
	metrics *Metrics
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithDebug logs every line written and read at debug level.
func WithDebug(on bool) Option {
	return func(s *Session) { s.debug = on }
}

// WithReplyTimeout changes the default per-request timeout.
func WithReplyTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.replyTimeout = d
		}
	}
}

// WithConnectTimeout changes how long Connect waits for #CONNECTED.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// NewSession wraps t. The session starts Idle.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport:      t,
		state:          Idle,
		replyTimeout:   DefaultReplyTimeout,
		connectTimeout: DefaultConnectTimeout,
		log:            zerolog.Nop(),
		metrics:        &Metrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timeout = s.replyTimeout
	return s
}

// State returns the current connection state.
func (s *Session) State() ConnState { return s.state }

// Debug reports whether line tracing is on.
func (s *Session) Debug() bool { return s.debug }

// Timeout returns the deadline of the last exchange.
func (s *Session) Timeout() time.Duration { return s.timeout }

// Metrics returns the live counters of this session.
func (s *Session) Metrics() *Metrics { return s.metrics }

// Close closes the transport.
func (s *Session) Close() error { return s.transport.Close() }

type sendOptions struct {
	token        string
	timeout      time.Duration
	ignoreErrors bool
}

// SendOption tunes a single Send.
type SendOption func(*sendOptions)

// WithReplyToken waits for a line starting with tok instead of "=".
func WithReplyToken(tok string) SendOption {
	return func(o *sendOptions) { o.token = tok }
}

// WithTimeout bounds the whole exchange.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = d }
}

// IgnoreErrors makes an error line end the exchange successfully with an
// empty payload.
func IgnoreErrors() SendOption {
	return func(o *sendOptions) { o.ignoreErrors = true }
}

// Send writes cmd and reads lines until the reply arrives, returning the
// text after the reply token.
//
// A command mentioning "connect" moves an Idle or Disconnected session to
// Connecting before any line is read; a Connected session stays Connected.
//
// Status lines are handled first on every line: #CONNECTED moves the state
// to Connected and the wait goes on unless the line also carries the reply
// token; #DISCONNECTED moves it to Disconnected and ends the session. Error
// lines end the session unless IgnoreErrors is given. Anything else is
// discarded.
//
// Errors are a *SessionEndedError, a *TransportError, ErrClosed, or the
// context error when ctx is cancelled while waiting.
func (s *Session) Send(ctx context.Context, cmd string, opts ...SendOption) (string, error) {
	o := sendOptions{token: DefaultReplyToken, timeout: s.replyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.token == "" {
		o.token = DefaultReplyToken
	}
	if o.timeout <= 0 {
		o.timeout = s.replyTimeout
	}

	if s.debug {
		s.log.Debug().Str("dir", "out").Msg(cmd)
	}
	if err := s.transport.WriteLine(cmd); err != nil {
		return "", err
	}
	start := now()
	s.metrics.recordCommand(start)

	prev := s.state
	if isConnectFamily(cmd) && prev != Connected {
		s.setState(Connecting)
	}

	s.timeout = o.timeout
	if err := s.transport.SetReadTimeout(o.timeout); err != nil {
		return "", err
	}

	payload, err := s.await(ctx, cmd, o, start)
	if err == nil {
		s.finishLinkCommand(cmd, prev)
	}
	return payload, err
}

func (s *Session) await(ctx context.Context, cmd string, o sendOptions, start time.Time) (string, error) {
	for {
		text, err := s.readLine(ctx)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				return "", s.timedOut(cmd)
			}
			return "", err
		}
		// A line straddling the deadline counts as a timeout, whatever it says.
		if text == "" || now().Sub(start) > o.timeout {
			return "", s.timedOut(cmd)
		}

		ln := ClassifyLine(text, o.token)
		switch ln.Kind {
		case LineStatus:
			if err := s.applyStatus(ln, cmd); err != nil {
				return "", err
			}
			if strings.HasPrefix(text, o.token) {
				s.metrics.recordReply(now().Sub(start))
				return text[len(o.token):], nil
			}

		case LineReply:
			s.metrics.recordReply(now().Sub(start))
			return ln.Payload, nil

		case LineError:
			s.metrics.ErrorLines.Inc()
			if o.ignoreErrors {
				s.metrics.IgnoredErrors.Inc()
				s.log.Debug().Str("cmd", cmd).Str("reply", text).Msg("ignoring error reply")
				return "", nil
			}
			return "", sessionEnded(ProtocolError, cmd, text, "")

		default:
			s.metrics.DiscardedLines.Inc()
			if s.debug {
				s.log.Debug().Str("cmd", cmd).Str("line", text).Msg("discarding unrelated line")
			}
		}
	}
}

// readLine reads one trimmed line and traces it.
func (s *Session) readLine(ctx context.Context) (string, error) {
	text, err := s.transport.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	s.metrics.LinesReceived.Inc()
	if s.debug {
		s.log.Debug().Str("dir", "in").Msg(text)
	}
	return text, nil
}

// applyStatus performs the state transition a status line carries. It
// returns the session-ending error for #DISCONNECTED.
func (s *Session) applyStatus(ln Line, cmd string) error {
	s.metrics.StatusLines.Inc()
	switch ln.Status {
	case StatusConnected:
		s.setState(Connected)
	case StatusDisconnected:
		s.setState(Disconnected)
		s.metrics.UnexpectedDisconnects.Inc()
		s.log.Warn().Str("code", ln.Code).Msg("peripheral has disconnected")
		return sessionEnded(UnexpectedDisconnect, cmd, ln.Text, ln.Code)
	}
	return nil
}

func (s *Session) timedOut(cmd string) error {
	s.metrics.Timeouts.Inc()
	s.log.Warn().Str("cmd", cmd).Dur("timeout", s.timeout).Msg("response timeout")
	return sessionEnded(ProtocolTimeout, cmd, "", "")
}

// finishLinkCommand applies the explicit teardown transitions once a
// disconnect or cancel_connect has been answered. A refused or unanswered
// teardown leaves the state alone.
func (s *Session) finishLinkCommand(cmd string, prev ConnState) {
	switch commandVerb(cmd) {
	case cmdDisconnect:
		if s.state == Disconnected {
			return
		}
		if prev == Idle {
			// Nothing was up; the command only reset the peripheral.
			s.setState(Idle)
			return
		}
		s.setState(Disconnected)
	case cmdCancelConnect:
		if s.state != Connected && s.state != Disconnected {
			s.setState(Idle)
		}
	}
}

// ReadEvent waits up to timeout for one unsolicited line outside of any
// request. Status lines update the state as in Send; #DISCONNECTED ends the
// session. ErrNoEvent is returned when nothing arrives in time.
func (s *Session) ReadEvent(ctx context.Context, timeout time.Duration) (Event, error) {
	if timeout <= 0 {
		timeout = s.replyTimeout
	}
	s.timeout = timeout
	if err := s.transport.SetReadTimeout(timeout); err != nil {
		return Event{}, err
	}

	text, err := s.readLine(ctx)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return Event{}, ErrNoEvent
		}
		return Event{}, err
	}
	if text == "" {
		return Event{}, ErrNoEvent
	}

	ln := ClassifyLine(text, DefaultReplyToken)
	if ln.Kind == LineStatus {
		if err := s.applyStatus(ln, ""); err != nil {
			return Event{}, err
		}
	}

	s.metrics.Events.Inc()
	ev, ok := ParseEvent(text)
	if !ok {
		return Event{Raw: text}, nil
	}
	return ev, nil
}

// HandshakeOptions controls the open-time sequence.
type HandshakeOptions struct {
	// ResetLink drops any link and scan left over from a previous run
	// before the version query.
	ResetLink bool

	// IndicatorLED is lit once the peripheral answered; negative skips it.
	IndicatorLED int
}

// Handshake verifies the peripheral answers and returns its version.
func (s *Session) Handshake(ctx context.Context, opts HandshakeOptions) (string, error) {
	if opts.ResetLink {
		// A link left up by a previous run reports #DISCONNECTED after the
		// reset reply, so that ending is expected here.
		if err := s.Disconnect(ctx, IgnoreErrors()); err != nil && !errors.Is(err, ErrUnexpectedDisconnect) {
			return "", err
		}
		if err := s.StopScan(ctx); err != nil && !errors.Is(err, ErrUnexpectedDisconnect) {
			return "", err
		}
	}

	version, err := s.Version(ctx)
	if errors.Is(err, ErrUnexpectedDisconnect) {
		version, err = s.Version(ctx)
	}
	if err != nil {
		return "", err
	}
	if opts.IndicatorLED >= 0 {
		if err := s.SetLED(ctx, opts.IndicatorLED, true); err != nil {
			return "", err
		}
	}

	s.log.Debug().Str("version", version).Msg("peripheral ready")
	return version, nil
}

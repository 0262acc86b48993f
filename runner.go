package enrf

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// allow tests to override external dependencies
var (
	sleep         = time.Sleep
	notifyContext = signal.NotifyContext
)

// Action is one tool operation run against a Session.
type Action func(ctx context.Context) error

// Runner executes an Action and leaves the peripheral in a quiet state
// when the action is interrupted or the session ends under it.
type Runner struct {
	session *Session
	log     zerolog.Logger

	indicatorLED int
	settleDelay  time.Duration
	resetLink    bool
	signals      []os.Signal

	cleaned atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger used to report cleanup.
func WithRunnerLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithIndicatorLED sets the pin switched off during cleanup; negative skips it.
func WithIndicatorLED(pin int) RunnerOption {
	return func(r *Runner) { r.indicatorLED = pin }
}

// WithSettleDelay sets the pause after the cleanup disconnect.
func WithSettleDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.settleDelay = d
		}
	}
}

// WithLinkReset controls whether cleanup starts by re-issuing the scan
// reset. It is on by default.
func WithLinkReset(on bool) RunnerOption {
	return func(r *Runner) { r.resetLink = on }
}

// WithSignals replaces the signals treated as an interruption.
func WithSignals(sig ...os.Signal) RunnerOption {
	return func(r *Runner) {
		if len(sig) > 0 {
			r.signals = sig
		}
	}
}

// NewRunner creates a Runner driving cleanup through s.
func NewRunner(s *Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		session:      s,
		log:          s.log,
		indicatorLED: DefaultIndicatorLED,
		settleDelay:  DefaultSettleDelay,
		resetLink:    true,
		signals:      []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes action once under a context that is cancelled by SIGINT or
// SIGTERM.
//
// A normal return is passed through. A transport failure is reported and
// returned without cleanup since the channel cannot carry it. Any other
// outcome, an interruption included, runs the cleanup sequence exactly
// once; Run then returns nil for an interruption and the action's error
// otherwise. Cleanup never fails.
func (r *Runner) Run(ctx context.Context, action Action) error {
	r.cleaned.Store(false)

	runCtx, stop := notifyContext(ctx, r.signals...)
	defer stop()

	err := action(runCtx)
	defer r.logMetrics()

	if errors.Is(err, ErrTransport) {
		r.log.Error().Err(err).Msg("serial port error")
		return err
	}

	interrupted := runCtx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
	if err == nil && !interrupted {
		return nil
	}

	switch {
	case interrupted:
		r.log.Info().Msg("interrupted")
	case errors.Is(err, ErrSessionEnded):
		r.log.Error().Err(err).Msg("session ended")
	default:
		r.log.Error().Err(err).Msg("action failed")
	}

	// Cleanup must still reach the peripheral after the run context is gone.
	r.cleanup(context.WithoutCancel(ctx))

	if interrupted {
		return nil
	}
	return err
}

// cleanup switches the indicator off and drops the link or the pending
// connect. Failures are logged and discarded; a transport failure stops the
// sequence.
func (r *Runner) cleanup(ctx context.Context) {
	if !r.cleaned.CompareAndSwap(false, true) {
		return
	}

	s := r.session
	step := func(name string, fn func() error) bool {
		err := fn()
		if err == nil {
			return true
		}
		r.log.Debug().Err(err).Str("step", name).Msg("cleanup step failed")
		return !errors.Is(err, ErrTransport) && !errors.Is(err, ErrClosed)
	}

	if r.resetLink && !step("stop scan", func() error { return s.StopScan(ctx) }) {
		return
	}
	if r.indicatorLED >= 0 && !step("indicator off", func() error { return s.SetLED(ctx, r.indicatorLED, false) }) {
		return
	}

	switch s.State() {
	case Connected:
		r.log.Info().Msg("disconnecting")
		if step("disconnect", func() error { return s.Disconnect(ctx) }) {
			sleep(r.settleDelay)
		}
	case Connecting:
		step("cancel connect", func() error { return s.CancelConnect(ctx) })
	}
}

func (r *Runner) logMetrics() {
	m := r.session.Metrics().Snapshot()
	r.log.Debug().
		Int64("commands", m.CommandsSent).
		Int64("replies", m.RepliesReceived).
		Int64("discarded", m.DiscardedLines).
		Int64("timeouts", m.Timeouts).
		Dur("avg_reply", m.AverageReplyLatency).
		Stringer("state", r.session.State()).
		Msg("session summary")
}

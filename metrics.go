package enrf

import (
	"time"

	"go.uber.org/atomic"
)

// Metrics tracks protocol health for one Session.
type Metrics struct {
	// Exchanges
	CommandsSent    atomic.Int64 // Commands written
	RepliesReceived atomic.Int64 // Exchanges ended by the awaited reply
	TotalReplyTime  atomic.Int64 // Time spent waiting for replies (ns)
	MaxReplyTime    atomic.Int64 // Slowest reply (ns)
	LastCommandTime atomic.Int64 // Unix timestamp of last command

	// Lines
	LinesReceived  atomic.Int64 // Every line read, whatever its kind
	StatusLines    atomic.Int64 // #CONNECTED / #DISCONNECTED
	DiscardedLines atomic.Int64 // Unrecognized lines skipped while waiting
	Events         atomic.Int64 // Lines returned by ReadEvent

	// Session endings and errors
	ErrorLines            atomic.Int64 // '*' lines, ignored or not
	IgnoredErrors         atomic.Int64 // '*' lines swallowed by IgnoreErrors
	Timeouts              atomic.Int64 // ProtocolTimeout endings
	UnexpectedDisconnects atomic.Int64 // UnexpectedDisconnect endings

	StateChanges atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived values.
type MetricsSnapshot struct {
	Timestamp time.Time

	CommandsSent    int64
	RepliesReceived int64
	LinesReceived   int64
	StatusLines     int64
	DiscardedLines  int64
	Events          int64

	ErrorLines            int64
	IgnoredErrors         int64
	Timeouts              int64
	UnexpectedDisconnects int64
	StateChanges          int64

	AverageReplyLatency time.Duration
	MaxReplyLatency     time.Duration
	ReplySuccessRate    float64
}

// Snapshot copies the counters and computes rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Timestamp:             time.Now(),
		CommandsSent:          m.CommandsSent.Load(),
		RepliesReceived:       m.RepliesReceived.Load(),
		LinesReceived:         m.LinesReceived.Load(),
		StatusLines:           m.StatusLines.Load(),
		DiscardedLines:        m.DiscardedLines.Load(),
		Events:                m.Events.Load(),
		ErrorLines:            m.ErrorLines.Load(),
		IgnoredErrors:         m.IgnoredErrors.Load(),
		Timeouts:              m.Timeouts.Load(),
		UnexpectedDisconnects: m.UnexpectedDisconnects.Load(),
		StateChanges:          m.StateChanges.Load(),
		MaxReplyLatency:       time.Duration(m.MaxReplyTime.Load()),
	}
	s.AverageReplyLatency = m.calculateAverageReplyLatency()
	s.ReplySuccessRate = m.calculateReplySuccessRate()
	return s
}

func (m *Metrics) recordCommand(at time.Time) {
	m.CommandsSent.Inc()
	m.LastCommandTime.Store(at.Unix())
}

func (m *Metrics) recordReply(d time.Duration) {
	m.RepliesReceived.Inc()
	m.TotalReplyTime.Add(int64(d))
	for {
		cur := m.MaxReplyTime.Load()
		if int64(d) <= cur || m.MaxReplyTime.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func (m *Metrics) calculateAverageReplyLatency() time.Duration {
	replies := m.RepliesReceived.Load()
	if replies == 0 {
		return 0
	}
	return time.Duration(m.TotalReplyTime.Load() / replies)
}

func (m *Metrics) calculateReplySuccessRate() float64 {
	sent := m.CommandsSent.Load()
	if sent == 0 {
		return 100.0
	}
	return float64(m.RepliesReceived.Load()) / float64(sent) * 100
}

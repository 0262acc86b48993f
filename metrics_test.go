package enrf

import (
	"testing"
	"time"
)

func TestMetricsSnapshotEmpty(t *testing.T) {
	var m Metrics
	s := m.Snapshot()

	if s.ReplySuccessRate != 100.0 {
		t.Errorf("expected 100%% success rate with nothing sent, got %.1f", s.ReplySuccessRate)
	}
	if s.AverageReplyLatency != 0 {
		t.Errorf("expected zero average latency, got %v", s.AverageReplyLatency)
	}
}

func TestMetricsReplyLatency(t *testing.T) {
	var m Metrics
	at := time.Unix(1700000000, 0)

	for i := 0; i < 4; i++ {
		m.recordCommand(at)
	}
	m.recordReply(10 * time.Millisecond)
	m.recordReply(30 * time.Millisecond)
	m.recordReply(20 * time.Millisecond)

	s := m.Snapshot()
	if s.CommandsSent != 4 {
		t.Errorf("expected 4 commands, got %d", s.CommandsSent)
	}
	if s.AverageReplyLatency != 20*time.Millisecond {
		t.Errorf("expected 20ms average, got %v", s.AverageReplyLatency)
	}
	if s.MaxReplyLatency != 30*time.Millisecond {
		t.Errorf("expected 30ms max, got %v", s.MaxReplyLatency)
	}
	if s.ReplySuccessRate != 75.0 {
		t.Errorf("expected 75%% success rate, got %.1f", s.ReplySuccessRate)
	}
	if got := m.LastCommandTime.Load(); got != at.Unix() {
		t.Errorf("expected last command time %d, got %d", at.Unix(), got)
	}
}

func TestMetricsStateChanges(t *testing.T) {
	s := NewSession(newFakeTransport())
	s.setState(Connecting)
	s.setState(Connecting)
	s.setState(Connected)

	if got := s.Metrics().StateChanges.Load(); got != 2 {
		t.Errorf("expected 2 state changes, got %d", got)
	}
}

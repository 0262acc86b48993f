package enrf

// ConnState is the link state between the peripheral and its remote BLE peer.
type ConnState uint32

const (
	// Idle is the initial state: no link and no connect attempt in progress.
	Idle ConnState = iota
	// Connecting means a connect-family command has been sent and no
	// #CONNECTED status has been seen yet.
	Connecting
	// Connected means the peripheral reported #CONNECTED.
	Connected
	// Disconnected is terminal for the current attempt; a fresh connect
	// command may be issued from here.
	Disconnected
)

func (cs ConnState) String() string {
	switch cs {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// IsConnecting returns if a connect attempt is in progress.
func (cs ConnState) IsConnecting() bool { return cs == Connecting }

// IsConnected returns if the link is up.
func (cs ConnState) IsConnected() bool { return cs == Connected }

// IsDisconnected returns if the link was lost or torn down.
func (cs ConnState) IsDisconnected() bool { return cs == Disconnected }

// setState is the single writer of Session.state.
func (s *Session) setState(next ConnState) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next
	s.metrics.StateChanges.Inc()
	s.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("connection state changed")
}

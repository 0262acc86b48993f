package enrf

import "strings"

const (
	// DefaultReplyToken marks a line as the answer to the last command.
	DefaultReplyToken = "="

	errorMarker        = "*"
	statusConnected    = "#CONNECTED"
	statusDisconnected = "#DISCONNECTED"
)

// LineKind is the classification of a received line.
type LineKind int

const (
	LineUnrecognized LineKind = iota
	LineReply
	LineStatus
	LineError
)

func (k LineKind) String() string {
	switch k {
	case LineReply:
		return "reply"
	case LineStatus:
		return "status"
	case LineError:
		return "error"
	default:
		return "unrecognized"
	}
}

// StatusKind is the connection lifecycle event carried by a status line.
type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusConnected
	StatusDisconnected
)

// Line is a classified line read from the peripheral.
type Line struct {
	Kind LineKind
	Text string

	// Payload is the text after the reply token for LineReply and the
	// message after the error marker for LineError.
	Payload string

	Status StatusKind
	// Code is the reason code following #DISCONNECTED, e.g. "0x13".
	Code string
}

// ClassifyLine sorts one line into exactly one LineKind. Status lines win
// over replies so an unsolicited disconnect is never taken for an answer.
func ClassifyLine(text, token string) Line {
	if token == "" {
		token = DefaultReplyToken
	}
	ln := Line{Text: text}

	// #DISCONNECTED is checked first; it does not contain "#CONNECTED" but
	// reads more naturally that way.
	if i := strings.Index(text, statusDisconnected); i >= 0 {
		ln.Kind = LineStatus
		ln.Status = StatusDisconnected
		ln.Code = disconnectCode(text[i+len(statusDisconnected):])
		return ln
	}
	if strings.Contains(text, statusConnected) {
		ln.Kind = LineStatus
		ln.Status = StatusConnected
		return ln
	}
	if strings.HasPrefix(text, token) {
		ln.Kind = LineReply
		ln.Payload = text[len(token):]
		return ln
	}
	if strings.HasPrefix(text, errorMarker) {
		ln.Kind = LineError
		ln.Payload = strings.TrimSpace(text[len(errorMarker):])
		return ln
	}
	ln.Kind = LineUnrecognized
	return ln
}

func disconnectCode(rest string) string {
	rest = strings.TrimLeft(rest, " ,:")
	if f := strings.Fields(rest); len(f) > 0 {
		return strings.TrimRight(f[0], ",")
	}
	return ""
}

// isConnectFamily reports whether cmd initiates or tears down a link, which
// is any command mentioning "connect".
func isConnectFamily(cmd string) bool {
	return strings.Contains(strings.ToLower(cmd), "connect")
}

// commandVerb returns the lower-cased command name before the first ';'.
func commandVerb(cmd string) string {
	verb, _, _ := strings.Cut(cmd, ";")
	return strings.ToLower(strings.TrimSpace(verb))
}

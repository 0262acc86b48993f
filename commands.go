package enrf

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Firmware command names.
const (
	cmdVersion       = "vers"
	cmdMAC           = "mac"
	cmdTxPower       = "tx_pow"
	cmdScan          = "scan"
	cmdStopScan      = "scan;"
	cmdConnect       = "connect"
	cmdCancelConnect = "cancel_connect"
	cmdDisconnect    = "disconnect"
	cmdLED           = "led"
	cmdNotify        = "notify"
	cmdWrite         = "write"
	cmdWriteNoResp   = "write_cmd"
	cmdRead          = "read"
	cmdNUS           = "nusc"
	cmdAddUUID       = "add_uuid"
)

// Version returns the firmware version string.
func (s *Session) Version(ctx context.Context) (string, error) {
	p, err := s.Send(ctx, cmdVersion)
	if err != nil {
		return "", err
	}
	return stripEcho(p, cmdVersion), nil
}

// MAC returns the peripheral's own BLE address.
func (s *Session) MAC(ctx context.Context) (string, error) {
	p, err := s.Send(ctx, cmdMAC)
	if err != nil {
		return "", err
	}
	return stripEcho(p, cmdMAC), nil
}

// SetTxPower sets the radio transmit power in dBm.
func (s *Session) SetTxPower(ctx context.Context, dbm int) error {
	_, err := s.Send(ctx, fmt.Sprintf("%s;%d", cmdTxPower, dbm))
	return err
}

// SetLED switches an indicator pin.
func (s *Session) SetLED(ctx context.Context, pin int, on bool) error {
	_, err := s.Send(ctx, fmt.Sprintf("%s;%d;%s", cmdLED, pin, flag(on)))
	return err
}

// ScanParams filter and shape a scan.
type ScanParams struct {
	// Match keeps reports containing any of these strings; empty keeps all.
	Match     []string
	Once      bool
	LongRange bool
	Active    bool
	// Timeout stops the scan on the peripheral; zero scans until stopped.
	Timeout time.Duration
}

func (p ScanParams) command() string {
	return strings.Join([]string{
		cmdScan,
		strings.Join(p.Match, "|"),
		flag(p.Once),
		flag(p.LongRange),
		flag(p.Active),
		strconv.Itoa(int(p.Timeout / time.Second)),
	}, ";")
}

// StartScan starts scanning. Reports arrive as SCAN events.
func (s *Session) StartScan(ctx context.Context, p ScanParams) error {
	_, err := s.Send(ctx, p.command())
	return err
}

// StopScan resets scanning on the peripheral, ignoring a refusal.
func (s *Session) StopScan(ctx context.Context) error {
	_, err := s.Send(ctx, cmdStopScan, IgnoreErrors())
	return err
}

// Connect links to the peer at addr ("P" prefix for a public address) and
// waits for #CONNECTED.
func (s *Session) Connect(ctx context.Context, addr string, longRange bool) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("enrf: empty peer address")
	}
	cmd := fmt.Sprintf("%s;%s;%s", cmdConnect, addr, flag(longRange))
	_, err := s.Send(ctx, cmd, WithReplyToken(statusConnected), WithTimeout(s.connectTimeout))
	return err
}

// Disconnect tears down the link.
func (s *Session) Disconnect(ctx context.Context, opts ...SendOption) error {
	_, err := s.Send(ctx, cmdDisconnect, opts...)
	return err
}

// CancelConnect aborts a pending connect. A refusal is ignored.
func (s *Session) CancelConnect(ctx context.Context) error {
	_, err := s.Send(ctx, cmdCancelConnect, IgnoreErrors())
	return err
}

// EnableNotify subscribes to notifications of a characteristic handle.
func (s *Session) EnableNotify(ctx context.Context, handle uint16) error {
	_, err := s.Send(ctx, fmt.Sprintf("%s;%X", cmdNotify, handle))
	return err
}

// WriteChar writes data to a characteristic, with or without a response.
func (s *Session) WriteChar(ctx context.Context, handle uint16, data []byte, withResponse bool) error {
	if len(data) == 0 {
		return errors.New("enrf: empty characteristic value")
	}
	verb := cmdWriteNoResp
	if withResponse {
		verb = cmdWrite
	}
	_, err := s.Send(ctx, fmt.Sprintf("%s;%X;%s", verb, handle, strings.ToUpper(hex.EncodeToString(data))))
	return err
}

// ReadChar reads a characteristic value. The value arrives as a READ_RESP
// event after the command is accepted.
func (s *Session) ReadChar(ctx context.Context, handle uint16) ([]byte, error) {
	p, err := s.Send(ctx, fmt.Sprintf("%s;%X", cmdRead, handle), WithReplyToken("#"+EventReadResp+":"))
	if err != nil {
		return nil, err
	}
	hd, err := ParseHandleData(p)
	if err != nil {
		return nil, err
	}
	return hd.Data, nil
}

// SendNUS sends text through the Nordic UART Service client.
func (s *Session) SendNUS(ctx context.Context, text string) error {
	_, err := s.Send(ctx, cmdNUS+";"+text)
	return err
}

// AddUUID registers a vendor specific 128-bit base UUID.
func (s *Session) AddUUID(ctx context.Context, uuid string) error {
	_, err := s.Send(ctx, cmdAddUUID+";"+uuid)
	return err
}

// stripEcho removes the upper-cased command name the firmware puts in
// front of its replies.
func stripEcho(payload, verb string) string {
	p := strings.TrimSpace(payload)
	if len(p) < len(verb) || !strings.EqualFold(p[:len(verb)], verb) {
		return p
	}
	rest := p[len(verb):]
	if rest != "" && rest[0] != ' ' {
		return p
	}
	return strings.TrimSpace(rest)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

package enrf

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Kinds of asynchronous lines emitted by the firmware.
const (
	EventConnected    = "CONNECTED"
	EventDisconnected = "DISCONNECTED"
	EventScan         = "SCAN"
	EventConnect      = "CONNECT"
	EventAdvertise    = "ADVERTISE"
	EventNUS          = "NUS"
	EventNUSClient    = "NUSC"
	EventNUSDetected  = "NUS_DETECTED"
	EventNotification = "NOTIF"
	EventReadResp     = "READ_RESP"
	EventWriteResp    = "WRITE_RESP"
	EventDiscHandle   = "DISC_HANDLE"
	EventDiscDone     = "DISC_DONE"
	EventStartup      = "STARTUP"
)

const scanTimedOut = "Time out"

// Event is an unsolicited '#' line. Lines that are not '#' lines come back
// from Session.ReadEvent with only Raw set.
type Event struct {
	Kind    string
	Payload string
	Raw     string
}

// TimedOut reports the "Time out" payload of SCAN, CONNECT and ADVERTISE.
func (e Event) TimedOut() bool { return e.Payload == scanTimedOut }

// ParseEvent splits "#KIND:payload" or "#KIND payload".
func ParseEvent(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") || len(line) == 1 {
		return Event{}, false
	}
	body := line[1:]
	kind, payload := body, ""
	if i := strings.IndexAny(body, ": "); i >= 0 {
		kind, payload = body[:i], strings.TrimSpace(body[i+1:])
	}
	return Event{Kind: kind, Payload: payload, Raw: line}, true
}

// ScanReport is one advertisement seen during a scan.
type ScanReport struct {
	Address string
	Name    string
	Data    []byte // manufacturer specific data
	RSSI    int
}

// ParseScanReport decodes "address;name;manufacturer_hex;rssi".
func ParseScanReport(payload string) (ScanReport, error) {
	if payload == scanTimedOut {
		return ScanReport{}, ErrScanTimeout
	}
	f := strings.Split(payload, ";")
	if len(f) != 4 {
		return ScanReport{}, fmt.Errorf("enrf: malformed scan report %q", payload)
	}
	data, err := hex.DecodeString(f[2])
	if err != nil {
		return ScanReport{}, fmt.Errorf("enrf: scan report data: %w", err)
	}
	rssi, err := strconv.Atoi(f[3])
	if err != nil {
		return ScanReport{}, fmt.Errorf("enrf: scan report rssi: %w", err)
	}
	return ScanReport{Address: f[0], Name: f[1], Data: data, RSSI: rssi}, nil
}

// HandleData is a characteristic value tagged with its handle.
type HandleData struct {
	Handle uint16
	Data   []byte
}

// ParseHandleData decodes "HANDLE_HEX,DATA_HEX" as carried by NOTIF,
// READ_RESP and WRITE_RESP.
func ParseHandleData(payload string) (HandleData, error) {
	h, d, ok := strings.Cut(strings.TrimSpace(payload), ",")
	if !ok {
		return HandleData{}, fmt.Errorf("enrf: malformed handle data %q", payload)
	}
	handle, err := strconv.ParseUint(h, 16, 16)
	if err != nil {
		return HandleData{}, fmt.Errorf("enrf: handle: %w", err)
	}
	data, err := hex.DecodeString(d)
	if err != nil {
		return HandleData{}, fmt.Errorf("enrf: handle data: %w", err)
	}
	return HandleData{Handle: uint16(handle), Data: data}, nil
}

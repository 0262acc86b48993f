package enrf

import (
	"strings"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	defaultPortName = "/dev/ttyACM0"

	// nrfProduct is the USB product string of the ble_tool firmware.
	nrfProduct = "nRF52 USB"
)

// allow tests to override external dependencies
var (
	getPortsList  = gobug.GetPortsList
	detailedPorts = enumerator.GetDetailedPortsList
)

// AvailablePorts lists the serial devices present on the system.
func AvailablePorts() ([]string, error) {
	return getPortsList()
}

// DefaultPort returns the first USB port announcing itself as the nRF52
// firmware, or /dev/ttyACM0 when none does or enumeration fails.
func DefaultPort() string {
	ports, err := detailedPorts()
	if err != nil {
		return defaultPortName
	}
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		if strings.Contains(p.Product, nrfProduct) {
			return p.Name
		}
	}
	return defaultPortName
}

func isValidPortPattern(portName string) bool {
	// Prevent path traversal
	if strings.Contains(portName, "..") {
		return false
	}
	// Windows: COM1-COM999
	if strings.HasPrefix(portName, "COM") && len(portName) >= 4 && len(portName) <= 6 {
		return true
	}
	// Unix: /dev/tty*, /dev/cu* (macOS) and udev symlinks
	return strings.HasPrefix(portName, "/dev/tty") ||
		strings.HasPrefix(portName, "/dev/cu") ||
		strings.HasPrefix(portName, "/dev/serial/")
}

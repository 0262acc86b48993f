package enrf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobug "go.bug.st/serial"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enrf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("expected valid default config, got error: %v", err)
	}
	if cfg.Port.BaudRate != 115200 {
		t.Fatalf("expected 115200 baud, got %d", cfg.Port.BaudRate)
	}
	if !cfg.Session.ResetLink {
		t.Fatal("expected link reset on by default")
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfig(t, `
port:
  name: /dev/ttyUSB1
  baud_rate: 1000000
  parity: even
session:
  debug: true
  reply_timeout: 250ms
  indicator_led: -1
  reset_link: false
log:
  level: debug
  file: /tmp/enrf.log
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Port.Name)
	assert.Equal(t, 1000000, cfg.Port.BaudRate)
	assert.Equal(t, "even", cfg.Port.Parity)
	assert.Equal(t, 8, cfg.Port.DataBits)
	assert.True(t, cfg.Session.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.ReplyTimeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.Session.ConnectTimeout)
	assert.Equal(t, -1, cfg.Session.IndicatorLED)
	assert.False(t, cfg.Session.ResetLink)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/enrf.log", cfg.Log.File)
	assert.True(t, cfg.Log.Console)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "port:\n  name: /dev/ttyUSB1\n")
	t.Setenv("ENRF_PORT", "/dev/ttyACM3")
	t.Setenv("ENRF_DEBUG", "true")
	t.Setenv("ENRF_LONG_RANGE", "1")
	t.Setenv("ENRF_REPLY_TIMEOUT", "1s")
	t.Setenv("ENRF_SETTLE_DELAY", "0s")
	t.Setenv("ENRF_INDICATOR_LED", "5")
	t.Setenv("ENRF_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM3", cfg.Port.Name)
	assert.True(t, cfg.Session.Debug)
	assert.True(t, cfg.Session.LongRange)
	assert.Equal(t, time.Second, cfg.Session.ReplyTimeout)
	assert.Zero(t, cfg.Session.SettleDelay)
	assert.Equal(t, 5, cfg.Session.IndicatorLED)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("ENRF_BAUD_RATE", "fast")
	t.Setenv("ENRF_DEBUG", "maybe")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENRF_BAUD_RATE")
	assert.Contains(t, err.Error(), "ENRF_DEBUG")
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "port: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	_, err = LoadConfig(writeConfig(t, "port:\n  baud_rate: 1234\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid baud rate 1234")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"empty port name", func(c *Config) { c.Port.Name = "" }, "port name cannot be empty"},
		{"baud rate", func(c *Config) { c.Port.BaudRate = 12345 }, "invalid baud rate"},
		{"negative baud rate", func(c *Config) { c.Port.BaudRate = -9600 }, "invalid baud rate"},
		{"data bits", func(c *Config) { c.Port.DataBits = 9 }, "data bits must be 5-8"},
		{"parity", func(c *Config) { c.Port.Parity = "X" }, "invalid parity"},
		{"stop bits", func(c *Config) { c.Port.StopBits = 3 }, "stop bits must be"},
		{"read timeout", func(c *Config) { c.Port.ReadTimeout = -time.Second }, "read timeout cannot be negative"},
		{"reply timeout", func(c *Config) { c.Session.ReplyTimeout = 0 }, "reply timeout must be positive"},
		{"connect timeout", func(c *Config) { c.Session.ConnectTimeout = -1 }, "connect timeout must be positive"},
		{"negative settle", func(c *Config) { c.Session.SettleDelay = -time.Millisecond }, "settle delay cannot be negative"},
		{"large settle", func(c *Config) { c.Session.SettleDelay = 11 * time.Second }, "settle delay too large"},
		{"led pin", func(c *Config) { c.Session.IndicatorLED = 32 }, "indicator led pin out of range"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "invalid level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := ValidateConfig(&cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q error, got: %v", tt.want, err)
			}
		})
	}
}

func TestParseParity(t *testing.T) {
	tests := map[string]gobug.Parity{
		"":      gobug.NoParity,
		"n":     gobug.NoParity,
		"None":  gobug.NoParity,
		"O":     gobug.OddParity,
		"even":  gobug.EvenParity,
		"M":     gobug.MarkParity,
		"space": gobug.SpaceParity,
	}
	for in, want := range tests {
		got, err := parseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseStopBits(t *testing.T) {
	tests := map[float64]gobug.StopBits{
		0:   gobug.OneStopBit,
		1:   gobug.OneStopBit,
		1.5: gobug.OnePointFiveStopBits,
		2:   gobug.TwoStopBits,
	}
	for in, want := range tests {
		got, err := parseStopBits(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseStopBits(2.5)
	require.Error(t, err)
}

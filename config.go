package enrf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gobug "go.bug.st/serial"
	"gopkg.in/yaml.v3"

	"github.com/Station-Manager/enrf/logging"
)

const (
	DefaultBaudRate       = 115200
	DefaultReplyTimeout   = 3 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultIndicatorLED   = 3

	envPrefix = "ENRF_"
)

// PortConfig holds configuration for opening the serial device.
type PortConfig struct {
	// Name is the path to the serial device, e.g. /dev/ttyACM0.
	Name     string  `yaml:"name"`
	BaudRate int     `yaml:"baud_rate"`
	DataBits int     `yaml:"data_bits"`
	Parity   string  `yaml:"parity"`    // N, E, O, M or S
	StopBits float64 `yaml:"stop_bits"` // 1, 1.5 or 2

	// ReadTimeout is the initial line read timeout; zero selects
	// DefaultReplyTimeout. Session.Send replaces it per request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	DTR bool `yaml:"dtr"`
	RTS bool `yaml:"rts"`
}

// SessionConfig tunes the protocol session and the runner cleanup.
type SessionConfig struct {
	Debug          bool          `yaml:"debug"`
	LongRange      bool          `yaml:"long_range"`
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`

	// IndicatorLED is the pin lit while a tool runs; negative disables it.
	IndicatorLED int `yaml:"indicator_led"`

	// ResetLink sends disconnect and scan; during the handshake and
	// re-issues scan; during cleanup.
	ResetLink bool `yaml:"reset_link"`
}

// Config is the top-level tool configuration.
type Config struct {
	Port    PortConfig     `yaml:"port"`
	Session SessionConfig  `yaml:"session"`
	Log     logging.Config `yaml:"log"`
}

// DefaultConfig returns the settings the peripheral firmware expects.
func DefaultConfig() Config {
	return Config{
		Port: PortConfig{
			Name:        defaultPortName,
			BaudRate:    DefaultBaudRate,
			DataBits:    8,
			Parity:      "N",
			StopBits:    1,
			ReadTimeout: DefaultReplyTimeout,
			DTR:         true,
			RTS:         true,
		},
		Session: SessionConfig{
			ReplyTimeout:   DefaultReplyTimeout,
			ConnectTimeout: DefaultConnectTimeout,
			SettleDelay:    DefaultSettleDelay,
			IndicatorLED:   DefaultIndicatorLED,
			ResetLink:      true,
		},
		Log: logging.DefaultConfig(),
	}
}

// LoadConfig reads path (if non-empty) over the defaults and then applies
// ENRF_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Port.Name)
	integer("BAUD_RATE", &cfg.Port.BaudRate)
	boolean("DEBUG", &cfg.Session.Debug)
	boolean("LONG_RANGE", &cfg.Session.LongRange)
	boolean("RESET_LINK", &cfg.Session.ResetLink)
	integer("INDICATOR_LED", &cfg.Session.IndicatorLED)
	duration("REPLY_TIMEOUT", &cfg.Session.ReplyTimeout)
	duration("CONNECT_TIMEOUT", &cfg.Session.ConnectTimeout)
	duration("SETTLE_DELAY", &cfg.Session.SettleDelay)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)

	return errors.Join(errs...)
}

// ValidateConfig validates the whole configuration.
func ValidateConfig(cfg *Config) error {
	if err := ValidatePortConfig(&cfg.Port); err != nil {
		return err
	}

	s := cfg.Session
	if s.ReplyTimeout <= 0 {
		return fmt.Errorf("reply timeout must be positive, got: %v", s.ReplyTimeout)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", s.ConnectTimeout)
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative: %v", s.SettleDelay)
	}
	if s.SettleDelay > 10*time.Second {
		return fmt.Errorf("settle delay too large (max 10s): %v", s.SettleDelay)
	}
	if s.IndicatorLED > 31 {
		return fmt.Errorf("indicator led pin out of range: %d", s.IndicatorLED)
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600, 1000000}

// ValidatePortConfig validates serial port configuration parameters.
func ValidatePortConfig(cfg *PortConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("port name cannot be empty")
	}
	if !containsInt(validBaudRates, cfg.BaudRate) {
		return fmt.Errorf("invalid baud rate %d, must be one of: %v", cfg.BaudRate, validBaudRates)
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return fmt.Errorf("data bits must be 5-8, got: %d", cfg.DataBits)
	}
	if _, err := parseParity(cfg.Parity); err != nil {
		return err
	}
	if _, err := parseStopBits(cfg.StopBits); err != nil {
		return err
	}
	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("read timeout cannot be negative: %v", cfg.ReadTimeout)
	}
	return nil
}

// mode maps the configuration onto a go.bug.st/serial mode.
func (cfg PortConfig) mode() (*gobug.Mode, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	return &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

func parseParity(s string) (gobug.Parity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "N", "NONE":
		return gobug.NoParity, nil
	case "O", "ODD":
		return gobug.OddParity, nil
	case "E", "EVEN":
		return gobug.EvenParity, nil
	case "M", "MARK":
		return gobug.MarkParity, nil
	case "S", "SPACE":
		return gobug.SpaceParity, nil
	default:
		return gobug.NoParity, fmt.Errorf("invalid parity value: %q", s)
	}
}

func parseStopBits(f float64) (gobug.StopBits, error) {
	switch f {
	case 0, 1:
		return gobug.OneStopBit, nil
	case 1.5:
		return gobug.OnePointFiveStopBits, nil
	case 2:
		return gobug.TwoStopBits, nil
	default:
		return gobug.OneStopBit, fmt.Errorf("stop bits must be 0, 1, 1.5, or 2, got: %.1f", f)
	}
}

func containsInt(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

package enrf

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Dial opens the configured port, wraps it in a Session and runs the
// handshake. It returns the session and the firmware version.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Session, string, error) {
	port, err := OpenPort(cfg.Port)
	if err != nil {
		return nil, "", err
	}

	s := NewSession(port,
		WithLogger(log.With().Str("port", cfg.Port.Name).Logger()),
		WithDebug(cfg.Session.Debug),
		WithReplyTimeout(cfg.Session.ReplyTimeout),
		WithConnectTimeout(cfg.Session.ConnectTimeout),
	)

	version, err := s.Handshake(ctx, HandshakeOptions{
		ResetLink:    cfg.Session.ResetLink,
		IndicatorLED: cfg.Session.IndicatorLED,
	})
	if err != nil {
		err = fmt.Errorf("no response on %s: %w", cfg.Port.Name, err)
		if e := s.Close(); e != nil {
			err = errors.Join(err, e)
		}
		return nil, "", err
	}
	return s, version, nil
}

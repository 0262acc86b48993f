package enrf_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Station-Manager/enrf"
)

func Example() {
	cfg := enrf.DefaultConfig()
	cfg.Port.Name = enrf.DefaultPort()

	sess, version, err := enrf.Dial(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		fmt.Println("dial error:", err)
		return
	}
	defer sess.Close()
	fmt.Println("firmware:", version)

	runner := enrf.NewRunner(sess, enrf.WithIndicatorLED(cfg.Session.IndicatorLED))
	err = runner.Run(context.Background(), func(ctx context.Context) error {
		if err := sess.StartScan(ctx, enrf.ScanParams{Timeout: 5 * time.Second}); err != nil {
			return err
		}
		for {
			ev, err := sess.ReadEvent(ctx, time.Second)
			if errors.Is(err, enrf.ErrNoEvent) {
				continue
			}
			if err != nil {
				return err
			}
			if ev.Kind != enrf.EventScan {
				continue
			}
			if ev.TimedOut() {
				return nil
			}
			if rep, err := enrf.ParseScanReport(ev.Payload); err == nil {
				fmt.Println(rep.Address, rep.Name, rep.RSSI)
			}
		}
	})
	if err != nil {
		fmt.Println("run error:", err)
	}
}

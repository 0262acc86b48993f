package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Station-Manager/enrf"
	"github.com/Station-Manager/enrf/logging"
)

const eventPoll = 500 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "* %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: enrfcli [flags] command [args]

commands:
  ports               list serial ports
  vers                show firmware version and address
  send <command>      send a raw command and print the reply
  scan [match...]     print advertisements until interrupted
  connect <address>   connect, print incoming data, send stdin lines over NUS
  listen              print unsolicited lines until interrupted

flags:
`)
	flag.PrintDefaults()
}

func run() error {
	cfgFile := flag.String("c", "", "config file (YAML, default: enrf.yaml in the working directory)")
	port := flag.String("p", "", "serial port (default: first nRF52 USB device)")
	longRange := flag.Bool("l", false, "use long range BLE")
	debug := flag.Bool("d", false, "debug mode: trace every line")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	if args[0] == "ports" {
		ports, err := enrf.AvailablePorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	wd, err := workingDir()
	if err != nil {
		return err
	}
	cfg, err := enrf.LoadConfig(configPath(*cfgFile, wd))
	if err != nil {
		return err
	}
	switch {
	case *port != "":
		cfg.Port.Name = *port
	case cfg.Port.Name == enrf.DefaultConfig().Port.Name:
		cfg.Port.Name = enrf.DefaultPort()
	}
	if *longRange {
		cfg.Session.LongRange = true
	}
	if *debug {
		cfg.Session.Debug = true
		cfg.Log.Level = "debug"
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	app, err := newTool(wd, &cfg, &log)
	if err != nil {
		if errors.Is(err, enrf.ErrTransport) || errors.Is(err, enrf.ErrInvalidPortName) {
			return fmt.Errorf("invalid port: %s: %w", cfg.Port.Name, err)
		}
		return err
	}
	defer app.Close()
	log.Debug().Str("version", app.version).Msg("connected to peripheral")

	action, err := buildAction(args, cfg, app.session, app.version)
	if err != nil {
		return err
	}

	runner := enrf.NewRunner(app.session,
		enrf.WithRunnerLogger(log),
		enrf.WithIndicatorLED(cfg.Session.IndicatorLED),
		enrf.WithSettleDelay(cfg.Session.SettleDelay),
		enrf.WithLinkReset(cfg.Session.ResetLink),
	)
	return runner.Run(context.Background(), action)
}

func buildAction(args []string, cfg enrf.Config, sess *enrf.Session, version string) (enrf.Action, error) {
	switch args[0] {
	case "vers":
		return func(ctx context.Context) error {
			mac, err := sess.MAC(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("version: %s\naddress: %s\n", version, mac)
			return nil
		}, nil

	case "send":
		if len(args) < 2 {
			return nil, errors.New("send: missing command")
		}
		cmd := strings.Join(args[1:], " ")
		return func(ctx context.Context) error {
			payload, err := sess.Send(ctx, cmd)
			if err != nil {
				return err
			}
			fmt.Println(payload)
			return nil
		}, nil

	case "scan":
		fs := flag.NewFlagSet("scan", flag.ContinueOnError)
		timeout := fs.Duration("t", 0, "stop scanning after this long")
		once := fs.Bool("once", false, "stop after the first matching report")
		active := fs.Bool("active", false, "active scan (request scan responses)")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		params := enrf.ScanParams{
			Match:     fs.Args(),
			Once:      *once,
			LongRange: cfg.Session.LongRange,
			Active:    *active,
			Timeout:   *timeout,
		}
		return func(ctx context.Context) error { return scan(ctx, sess, params) }, nil

	case "connect":
		if len(args) != 2 {
			return nil, errors.New("connect: expected one address")
		}
		addr := args[1]
		return func(ctx context.Context) error { return connect(ctx, sess, addr, cfg.Session.LongRange) }, nil

	case "listen":
		return func(ctx context.Context) error {
			return eachEvent(ctx, sess, func(ev enrf.Event) (bool, error) {
				fmt.Println(ev.Raw)
				return false, nil
			})
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q", args[0])
}

func scan(ctx context.Context, sess *enrf.Session, params enrf.ScanParams) error {
	if err := sess.StartScan(ctx, params); err != nil {
		return err
	}
	return eachEvent(ctx, sess, func(ev enrf.Event) (bool, error) {
		if ev.Kind != enrf.EventScan {
			return false, nil
		}
		r, err := enrf.ParseScanReport(ev.Payload)
		if errors.Is(err, enrf.ErrScanTimeout) {
			return true, nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "* %v\n", err)
			return false, nil
		}
		fmt.Printf("%s %-24q %4d %X\n", r.Address, r.Name, r.RSSI, r.Data)
		return params.Once, nil
	})
}

func connect(ctx context.Context, sess *enrf.Session, addr string, longRange bool) error {
	fmt.Fprintf(os.Stderr, "Connecting to %s...\n", addr)
	if err := sess.Connect(ctx, addr, longRange); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Connected, Ctrl+C to disconnect")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			if err := sess.SendNUS(ctx, line); err != nil {
				return err
			}
		default:
		}

		ev, err := sess.ReadEvent(ctx, eventPoll)
		if errors.Is(err, enrf.ErrNoEvent) {
			continue
		}
		if err != nil {
			return err
		}
		printData(ev, sess.Debug())
	}
}

func printData(ev enrf.Event, verbose bool) {
	switch ev.Kind {
	case enrf.EventNUS, enrf.EventNUSClient:
		fmt.Println(ev.Payload)
	case enrf.EventNotification, enrf.EventReadResp:
		hd, err := enrf.ParseHandleData(ev.Payload)
		if err != nil {
			fmt.Println(ev.Raw)
			return
		}
		fmt.Printf("%04X: %X\n", hd.Handle, hd.Data)
	default:
		if verbose {
			fmt.Println(ev.Raw)
		}
	}
}

// eachEvent feeds events to fn until fn reports done or reading fails.
func eachEvent(ctx context.Context, sess *enrf.Session, fn func(enrf.Event) (bool, error)) error {
	for {
		ev, err := sess.ReadEvent(ctx, eventPoll)
		if errors.Is(err, enrf.ErrNoEvent) {
			continue
		}
		if err != nil {
			return err
		}
		done, err := fn(ev)
		if err != nil || done {
			return err
		}
	}
}

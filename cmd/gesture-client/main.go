// Gesture client - classifies frames, debounces them, and sends confirmed
// commands to the actuator host. Frames come from a replay script.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/channel"
	"github.com/teslashibe/go-gesture/pkg/classifier"
	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/pipeline"
)

type options struct {
	replay string
	land   bool
}

func main() {
	cfg, opts, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.InitWithOptions(log.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	if err := run(cfg, opts); err != nil {
		log.Error("gesture client failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, options, error) {
	var opts options
	path := flag.String("config", "", "YAML config file")
	host := flag.String("host", "", "Actuator host (overrides config)")
	port := flag.Int("port", 0, "Actuator port (overrides config)")
	serialPort := flag.String("serial", "", "Send over a serial port instead of TCP, e.g. /dev/ttyUSB0")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.replay, "replay", "-", "Label script to replay, - for stdin")
	flag.BoolVar(&opts.land, "land-on-exit", true, "Send LAND before disconnecting")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, opts, err
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *serialPort != "" {
		cfg.Client.SerialPort = *serialPort
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	return cfg, opts, cfg.Validate()
}

func run(cfg *config.Config, opts options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.With("app", "gesture-client")

	labels, err := gesture.NewLabelMap(cfg.Client.Labels, cfg.Client.Commands)
	if err != nil {
		return err
	}

	var dialer channel.Dialer = channel.TCPDialer{Addr: cfg.Addr(), Timeout: cfg.Client.ConnectTimeout}
	if cfg.Client.SerialPort != "" {
		dialer = channel.SerialDialer{Path: cfg.Client.SerialPort, BaudRate: cfg.Client.SerialBaud}
	}
	ch := channel.New(dialer,
		channel.WithAutoReconnect(cfg.Client.AutoReconnect),
		channel.WithWriteTimeout(cfg.Client.ConnectTimeout),
		channel.WithLogger(logger),
	)
	// A failed first connect is not fatal; Send dials lazily.
	if err := ch.Connect(ctx); err != nil {
		log.Warn("initial connect failed", "target", dialer.String(), "error", err)
	} else {
		log.Info("🔌 Connected", "target", dialer.String())
	}

	src := os.Stdin
	if opts.replay != "-" {
		f, err := os.Open(opts.replay)
		if err != nil {
			ch.Close()
			return err
		}
		defer f.Close()
		src = f
	}

	deb := gesture.NewDebouncer(gesture.DebounceConfig{
		Window:      cfg.Client.Window,
		MinInterval: cfg.Client.MinInterval,
		Logger:      logger,
	}, labels)

	driver := pipeline.NewDriver(classifier.NewReplay(src, labels), deb, ch, pipeline.Config{
		FrameInterval: cfg.Client.FrameInterval,
		LandOnExit:    opts.land,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return driver.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	st := driver.Stats()
	cs := ch.Stats()
	log.Info("✅ Done",
		"frames", st.Frames,
		"emitted", st.Emitted,
		"delivered", st.Delivered,
		"failed", st.Failed,
		"retryable", st.Retryable,
		"dials", cs.Dials,
	)
	return nil
}

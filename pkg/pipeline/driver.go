// Package pipeline drives the client side: classify each frame, debounce,
// and deliver confirmed commands over the command channel.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gesture/pkg/channel"
	"github.com/teslashibe/go-gesture/pkg/classifier"
	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Sender delivers one command. channel.Channel satisfies it.
type Sender interface {
	SendErr(ctx context.Context, cmd string) error
	Close() error
}

// Config controls the driver.
type Config struct {
	// FrameInterval paces frames for sources that do not block on capture.
	// Zero runs frames back to back.
	FrameInterval time.Duration
	// LandOnExit sends LAND before closing the channel.
	LandOnExit bool
	Logger     *slog.Logger
}

// Stats counts pipeline activity.
type Stats struct {
	Frames      uint64
	FrameErrors uint64
	Emitted     uint64
	Delivered   uint64
	Failed      uint64
	Retryable   uint64 // failures a later send may recover from
}

// Driver runs the frame loop on a single goroutine.
type Driver struct {
	cls    classifier.Classifier
	deb    *gesture.Debouncer
	sender Sender
	cfg    Config
	log    *slog.Logger
	stats  Stats
}

// NewDriver creates a Driver.
func NewDriver(cls classifier.Classifier, deb *gesture.Debouncer, sender Sender, cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{
		cls:    cls,
		deb:    deb,
		sender: sender,
		cfg:    cfg,
		log:    cfg.Logger.With("component", "pipeline"),
	}
}

// Run processes frames until ctx is done or the classifier reports io.EOF.
// A failed frame or a failed send never stops the loop.
func (d *Driver) Run(ctx context.Context) error {
	defer d.shutdown()

	var tick <-chan time.Time
	if d.cfg.FrameInterval > 0 {
		ticker := time.NewTicker(d.cfg.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		id, err := d.cls.Classify(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.log.Info("classifier stream ended")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			d.stats.FrameErrors++
			d.log.Warn("frame error", "error", err)
			continue
		}
		d.stats.Frames++
		d.step(ctx, id)
	}
}

func (d *Driver) step(ctx context.Context, id gesture.ClassID) {
	cmd, ok := d.deb.Observe(id)
	if !ok {
		return
	}
	d.stats.Emitted++
	d.log.Info("send", "class", int(id), "command", string(cmd))
	err := d.sender.SendErr(ctx, string(cmd))
	if err == nil {
		d.stats.Delivered++
		return
	}
	d.stats.Failed++
	retryable := channel.IsTemporary(err)
	if retryable {
		d.stats.Retryable++
	}
	d.log.Warn("command not delivered", "command", string(cmd), "error", err, "retryable", retryable)
}

func (d *Driver) shutdown() {
	if d.cfg.LandOnExit {
		// parent ctx may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := d.sender.SendErr(ctx, string(gesture.Land)); err != nil {
			d.log.Warn("final LAND not delivered", "error", err)
		}
		cancel()
	}
	if err := d.sender.Close(); err != nil {
		d.log.Debug("close channel", "error", err)
	}
}

// Stats returns the counters. Call after Run returns.
func (d *Driver) Stats() Stats {
	return d.stats
}

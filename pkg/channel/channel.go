// Package channel provides the client side of the command link: a single
// persistent connection carrying newline-terminated text commands, with lazy
// reconnection and a single reconnect-and-resend attempt on write failure.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Stats counts channel activity.
type Stats struct {
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Dials      uint64 `json:"dials"`
	DialErrors uint64 `json:"dial_errors"`
}

// Option configures a Channel.
type Option func(*Channel)

// WithAutoReconnect toggles reconnecting on demand. Default on.
func WithAutoReconnect(on bool) Option {
	return func(c *Channel) { c.reconnect = on }
}

// WithWriteTimeout bounds each write on connections that support write
// deadlines. Default DefaultConnectTimeout; zero or less disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Channel) { c.writeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// Channel is safe for concurrent use. Connect, Send and Close serialize on
// one mutex so a reconnect can never race a write.
type Channel struct {
	dialer       Dialer
	reconnect    bool
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	conn   Conn
	closed bool
	stats  Stats
}

// New creates a disconnected Channel. Call Connect to connect eagerly, or let
// the first Send connect lazily.
func New(d Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer:       d,
		reconnect:    true,
		writeTimeout: DefaultConnectTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "channel", "endpoint", d.String())
	return c
}

// Connect drops any existing connection and dials a fresh one. On failure
// the channel is left disconnected.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.connectLocked(ctx)
}

func (c *Channel) connectLocked(ctx context.Context) error {
	c.dropLocked()

	c.stats.Dials++
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.stats.DialErrors++
		c.logger.Warn("connection failed", "error", err)
		return &TransportError{Op: "dial", Err: err}
	}
	c.conn = conn
	c.logger.Info("connected")
	return nil
}

func (c *Channel) dropLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("close previous connection", "error", err)
	}
	c.conn = nil
}

// Send writes cmd plus a newline. It reports whether the write succeeded.
func (c *Channel) Send(ctx context.Context, cmd string) bool {
	return c.SendErr(ctx, cmd) == nil
}

// SendErr is Send with the failure reason. A write failure triggers exactly
// one reconnect-and-resend; if that fails too the channel is left
// disconnected and the error is returned.
func (c *Channel) SendErr(ctx context.Context, cmd string) error {
	data := []byte(cmd + "\n")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.conn == nil && c.reconnect {
		_ = c.connectLocked(ctx)
	}
	if c.conn == nil {
		c.stats.Failed++
		c.logger.Warn("no connection, command dropped", "command", cmd)
		return ErrNotConnected
	}

	err := c.writeLocked(data)
	if err == nil {
		return nil
	}
	c.logger.Warn("send error", "command", cmd, "error", err)

	if c.reconnect {
		if cerr := c.connectLocked(ctx); cerr == nil {
			if err = c.writeLocked(data); err == nil {
				return nil
			}
			c.logger.Warn("resend failed", "command", cmd, "error", err)
		} else {
			err = cerr
		}
	}

	c.dropLocked()
	c.stats.Failed++
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Op: "write", Err: err}
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// writeLocked writes all of data in one call on the current connection.
func (c *Channel) writeLocked(data []byte) error {
	if dl, ok := c.conn.(deadliner); ok && c.writeTimeout > 0 {
		if err := dl.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	n, err := c.conn.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errShortWrite
	}
	c.stats.Sent++
	return nil
}

var errShortWrite = errors.New("short write")

// Connected reports whether a connection is currently held.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stats returns a snapshot of the counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases the connection. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
		c.logger.Info("closed")
	}
	return err
}

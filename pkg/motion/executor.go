// Package motion runs gesture commands as continuous, cancellable actuation
// loops against a named scene object.
//
// The Executor keeps at most one job alive. Every accepted command first
// cancels the running job and waits for its loop to exit, so two jobs never
// issue actuation calls at the same time.
package motion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Executor defaults.
const (
	DefaultTick         = 20 * time.Millisecond
	DefaultStep         = 0.10
	DefaultLandFactor   = 3.0
	DefaultLandDuration = 500 * time.Millisecond
	DefaultHomeSettle   = 700 * time.Millisecond
)

// Config configures an Executor. Zero fields take defaults.
type Config struct {
	Object       string
	Tick         time.Duration
	Step         Vec3 // per-axis step magnitude for one tick
	LandFactor   float64
	LandDuration time.Duration
	HomeSettle   time.Duration
	Home         Vec3

	Logger   *slog.Logger
	Notifier Notifier
}

func (c *Config) applyDefaults() {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Step == (Vec3{}) {
		c.Step = Vec3{X: DefaultStep, Y: DefaultStep, Z: DefaultStep}
	}
	if c.LandFactor <= 0 {
		c.LandFactor = DefaultLandFactor
	}
	if c.LandDuration <= 0 {
		c.LandDuration = DefaultLandDuration
	}
	if c.HomeSettle <= 0 {
		c.HomeSettle = DefaultHomeSettle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Notifier == nil {
		c.Notifier = Notifiers(nil)
	}
}

// job is one running actuation loop.
type job struct {
	id        string
	cmd       gesture.Command
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	preempted atomic.Bool
	ticks     int // owned by the job goroutine until done is closed
}

func (j *job) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Executor is a single-active-job scheduler. It is safe for concurrent use.
type Executor struct {
	act Actuator
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	current *job
	jobs    uint64
	unknown uint64

	// Actuation error throttling (avoid log spam from a missing object)
	errMu         sync.Mutex
	errorCount    uint64
	lastErrorTime time.Time
}

// NewExecutor creates an idle Executor driving act.
func NewExecutor(act Actuator, cfg Config) *Executor {
	cfg.applyDefaults()
	return &Executor{
		act: act,
		cfg: cfg,
		log: cfg.Logger.With("component", "motion", "object", cfg.Object),
	}
}

// Execute runs one command line. Unknown commands are logged and leave the
// executor untouched. Known commands preempt the running job.
func (e *Executor) Execute(raw string) {
	cmd, ok := gesture.ParseCommand(raw)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !ok {
		e.unknown++
		e.log.Warn("unknown command, ignoring", "command", string(cmd))
		e.cfg.Notifier.Notify(Event{Type: EventUnknown, Command: cmd, At: time.Now()})
		return
	}

	e.log.Info("received", "command", string(cmd))
	e.cancelLocked()

	switch cmd.Kind() {
	case gesture.KindDirectional:
		delta := e.directionDelta(cmd)
		e.startLocked(cmd, 0, func(ctx context.Context, j *job) {
			e.repeat(ctx, j, delta)
		})

	case gesture.KindStop:
		e.cfg.Notifier.Notify(Event{Type: EventStopped, Command: cmd, At: time.Now()})

	case gesture.KindLand:
		delta := e.directionDelta(gesture.Down).Scale(e.cfg.LandFactor)
		e.startLocked(cmd, e.cfg.LandDuration, func(ctx context.Context, j *job) {
			e.repeat(ctx, j, delta)
		})

	case gesture.KindReturnHome:
		e.startLocked(cmd, e.cfg.HomeSettle, func(ctx context.Context, j *job) {
			e.apply(func() error { return e.act.ApplyAbsolute(e.cfg.Object, e.cfg.Home) })
			j.ticks++
			<-ctx.Done()
		})
	}
}

// Stop cancels the running job, if any, and waits for it to exit.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

// State returns a snapshot of the executor.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := State{Status: StatusIdle, Jobs: e.jobs, Unknown: e.unknown}
	if j := e.current; j != nil && !j.finished() {
		s.Status = StatusRunning
		s.Command = j.cmd
		s.JobID = j.id
		s.StartedAt = j.startedAt
	}
	return s
}

// cancelLocked stops the current job and blocks until its loop has returned.
// The wait is bounded by one tick since loops check for cancellation between
// actuation calls.
func (e *Executor) cancelLocked() {
	j := e.current
	if j == nil {
		return
	}
	e.current = nil
	if j.finished() {
		return
	}
	j.preempted.Store(true)
	j.cancel()
	<-j.done
}

// startLocked launches run in a new goroutine. A positive limit makes the
// job self-terminate after that duration.
func (e *Executor) startLocked(cmd gesture.Command, limit time.Duration, run func(context.Context, *job)) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if limit > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), limit)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	j := &job{
		id:        newJobID(),
		cmd:       cmd,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.current = j
	e.jobs++
	e.cfg.Notifier.Notify(Event{Type: EventStarted, Command: cmd, JobID: j.id, At: j.startedAt})

	go func() {
		defer cancel()
		run(ctx, j)

		typ := EventSelfTerminated
		if j.preempted.Load() {
			typ = EventCancelled
		}
		now := time.Now()
		e.log.Debug("job ended", "command", string(cmd), "job", j.id, "reason", string(typ), "ticks", j.ticks)
		e.cfg.Notifier.Notify(Event{
			Type:    typ,
			Command: cmd,
			JobID:   j.id,
			At:      now,
			Elapsed: now.Sub(j.startedAt),
			Ticks:   j.ticks,
		})
		close(j.done)
	}()
}

// repeat applies delta once per tick until ctx is done.
func (e *Executor) repeat(ctx context.Context, j *job, delta Vec3) {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		e.apply(func() error { return e.act.ApplyRelative(e.cfg.Object, delta) })
		j.ticks++

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// apply runs one actuation call. A missing object is a silent no-op; other
// errors are logged at most once per 5 seconds.
func (e *Executor) apply(call func() error) {
	err := call()
	if err == nil {
		return
	}
	if errors.Is(err, ErrObjectNotFound) {
		return
	}

	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.errorCount++
	if e.lastErrorTime.IsZero() || time.Since(e.lastErrorTime) > 5*time.Second {
		e.log.Warn("actuation error", "error", err, "total_errors", e.errorCount)
		e.lastErrorTime = time.Now()
	}
}

func (e *Executor) directionDelta(cmd gesture.Command) Vec3 {
	s := e.cfg.Step
	switch cmd {
	case gesture.Up:
		return Vec3{Y: s.Y}
	case gesture.Down:
		return Vec3{Y: -s.Y}
	case gesture.Left:
		return Vec3{X: -s.X}
	case gesture.Right:
		return Vec3{X: s.X}
	case gesture.Forward:
		return Vec3{Z: -s.Z}
	case gesture.Back:
		return Vec3{Z: s.Z}
	}
	return Vec3{}
}

package motion

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gesture/pkg/gesture"
)

// Vec3 is a position or offset in scene units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// ErrObjectNotFound is returned by an Actuator when the named object does not
// exist yet. The executor treats it as a no-op.
var ErrObjectNotFound = errors.New("motion: object not found")

// Actuator applies transforms to a named object in the host scene.
type Actuator interface {
	ApplyRelative(object string, delta Vec3) error
	ApplyAbsolute(object string, pos Vec3) error
}

// Status is the executor's coarse state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// State is a snapshot of the executor.
type State struct {
	Status    Status          `json:"status"`
	Command   gesture.Command `json:"command,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	Jobs      uint64          `json:"jobs"`
	Unknown   uint64          `json:"unknown"`
}

// EventType names an executor lifecycle event.
type EventType string

const (
	EventStarted        EventType = "started"
	EventCancelled      EventType = "cancelled"
	EventSelfTerminated EventType = "self_terminated"
	EventStopped        EventType = "stopped"
	EventUnknown        EventType = "unknown"
)

// Event describes one executor transition.
type Event struct {
	Type    EventType       `json:"type"`
	Command gesture.Command `json:"command"`
	JobID   string          `json:"job_id,omitempty"`
	At      time.Time       `json:"at"`
	Elapsed time.Duration   `json:"elapsed,omitempty"`
	Ticks   int             `json:"ticks,omitempty"`
}

// Notifier receives executor events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f.
func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers.
type Notifiers []Notifier

// Notify forwards e to every notifier.
func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		n.Notify(e)
	}
}

func newJobID() string {
	return uuid.NewString()
}

package gesture

import (
	"log/slog"
	"time"
)

// Debounce defaults.
const (
	DefaultWindow      = 6
	DefaultMinInterval = 350 * time.Millisecond
)

// DebounceConfig controls the Debouncer.
type DebounceConfig struct {
	Window      int           // samples in the sliding window
	MinInterval time.Duration // re-confirmation period for an unchanged class

	Now    func() time.Time // defaults to time.Now
	Logger *slog.Logger
}

// Debouncer is a majority-vote filter over the last N class ids.
// It is not safe for concurrent use; call Observe from the frame loop only.
type Debouncer struct {
	cfg    DebounceConfig
	labels *LabelMap

	window []ClassID // oldest first
	last   ClassID
	lastAt time.Time
	sent   bool
}

// NewDebouncer creates a Debouncer. Zero config fields take defaults.
func NewDebouncer(cfg DebounceConfig, labels *LabelMap) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Debouncer{
		cfg:    cfg,
		labels: labels,
		window: make([]ClassID, 0, cfg.Window),
		last:   NoGesture,
	}
}

// Observe feeds one frame's class id and returns a command when a stable
// class is confirmed: either it differs from the last emitted class or
// MinInterval has passed since the last emission.
func (d *Debouncer) Observe(id ClassID) (Command, bool) {
	if len(d.window) == d.cfg.Window {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
	}
	d.window = append(d.window, id)

	stable, ok := d.stable()
	if !ok || stable == NoGesture {
		return "", false
	}

	now := d.cfg.Now()
	if d.sent && stable == d.last && now.Sub(d.lastAt) <= d.cfg.MinInterval {
		return "", false
	}
	d.last = stable
	d.lastAt = now
	d.sent = true

	cmd, mapped := d.labels.Command(stable)
	if !mapped {
		d.cfg.Logger.Info("ignoring unmapped label", "class", int(stable), "label", d.labels.Label(stable))
		return "", false
	}
	return cmd, true
}

// stable returns the most frequent class in a full window. Ties go to the
// value whose first occurrence is oldest.
func (d *Debouncer) stable() (ClassID, bool) {
	if len(d.window) < d.cfg.Window {
		return NoGesture, false
	}

	counts := make(map[ClassID]int, len(d.window))
	for _, id := range d.window {
		counts[id]++
	}

	best, bestCount := NoGesture, 0
	for _, id := range d.window {
		if c := counts[id]; c > bestCount {
			best, bestCount = id, c
		}
	}
	return best, true
}

// Reset clears the window and emission history.
func (d *Debouncer) Reset() {
	d.window = d.window[:0]
	d.last = NoGesture
	d.lastAt = time.Time{}
	d.sent = false
}

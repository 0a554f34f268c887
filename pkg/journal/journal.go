// Package journal records executor events in a sqlite database so the host
// can report recent command history.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gesture/pkg/motion"
)

const schema = `
CREATE TABLE IF NOT EXISTS motion_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event TEXT NOT NULL,
	command TEXT NOT NULL,
	job_id TEXT,
	at_ms INTEGER NOT NULL,
	elapsed_ms REAL,
	ticks INTEGER
);
CREATE INDEX IF NOT EXISTS idx_motion_events_at ON motion_events(at_ms);
`

// Entry is one journaled event.
type Entry struct {
	ID        int64   `json:"id"`
	Event     string  `json:"event"`
	Command   string  `json:"command"`
	JobID     string  `json:"job_id,omitempty"`
	At        int64   `json:"at"` // Unix milliseconds
	ElapsedMs float64 `json:"elapsed_ms,omitempty"`
	Ticks     int     `json:"ticks,omitempty"`
}

// Journal is a sqlite-backed event log. Notify is non-blocking; events are
// written by a background goroutine.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	queue   chan motion.Event
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// Open opens (or creates) the journal at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
		queue:  make(chan motion.Event, 256),
		done:   make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

// Notify queues an event for writing. Events are dropped when the queue is full.
func (j *Journal) Notify(e motion.Event) {
	j.closeMu.Lock()
	defer j.closeMu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.logger.Warn("queue full, dropping event", "event", string(e.Type), "command", string(e.Command))
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.queue {
		if err := j.Record(context.Background(), e); err != nil {
			j.logger.Warn("record failed", "error", err)
		}
	}
}

// Record writes an event synchronously.
func (j *Journal) Record(ctx context.Context, e motion.Event) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO motion_events (event, command, job_id, at_ms, elapsed_ms, ticks) VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Type), string(e.Command), e.JobID, e.At.UnixMilli(),
		float64(e.Elapsed)/float64(time.Millisecond), e.Ticks,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event, command, job_id, at_ms, elapsed_ms, ticks FROM motion_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			jobID   sql.NullString
			elapsed sql.NullFloat64
			ticks   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Event, &e.Command, &jobID, &e.At, &elapsed, &ticks); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.JobID = jobID.String
		e.ElapsedMs = elapsed.Float64
		e.Ticks = int(ticks.Int64)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return entries, nil
}

// Close flushes queued events and closes the database. Safe to call twice.
func (j *Journal) Close() error {
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.closeMu.Unlock()

	<-j.done
	return j.db.Close()
}

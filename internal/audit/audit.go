// Package audit appends human-readable operator actions to one file per day
// under the audit directory. Lines are queued in memory and written on Flush.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"starterlock/internal/clock"
	"starterlock/internal/domain"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	KindJoin    = "JOIN"
	KindReload  = "RELOAD"
	KindBlocked = "BLOCKED"
)

type Event struct {
	At     time.Time
	Kind   string
	Player string
	ID     uuid.UUID
	Actor  string
	Detail string
}

type Log struct {
	dir    string
	clock  clock.Clock
	logger zerolog.Logger
	open   func(path string) (io.WriteCloser, error)

	mu      sync.Mutex
	pending []Event
}

func New(dir string, clk clock.Clock, logger zerolog.Logger) *Log {
	return &Log{
		dir:    dir,
		clock:  clk,
		logger: logger.With().Str("component", "audit").Logger(),
		open:   openAppend,
	}
}

func openAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// errWriter keeps the first write error, which zerolog would otherwise only
// hand to its global error handler. Writes after a failure are skipped.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	e.err = err
	return n, err
}

// Record queues an event. A zero At is replaced by the current time.
func (l *Log) Record(e Event) {
	if e.At.IsZero() {
		e.At = l.clock.Now()
	}
	l.mu.Lock()
	l.pending = append(l.pending, e)
	l.mu.Unlock()
}

// RecordAction queues a store action under the given player name.
func (l *Log) RecordAction(e domain.ActionLogEntry, player string) {
	actor := "CONSOLE"
	if e.Actor != uuid.Nil {
		actor = e.Actor.String()
	}
	l.Record(Event{
		At:     e.Timestamp,
		Kind:   string(e.Kind),
		Player: player,
		ID:     e.PlayerID,
		Actor:  actor,
		Detail: e.Payload,
	})
}

func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush writes queued events to their day files. Events that could not be
// written are queued again.
func (l *Log) Flush() error {
	l.mu.Lock()
	events := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.requeue(events)
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	byDay := make(map[string][]Event)
	var days []string
	for _, e := range events {
		day := e.At.Format(time.DateOnly)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], e)
	}

	var failed []Event
	var firstErr error
	for _, day := range days {
		if err := l.writeDay(day, byDay[day]); err != nil {
			failed = append(failed, byDay[day]...)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(failed) > 0 {
		l.requeue(failed)
		l.logger.Warn().Err(firstErr).Int("events", len(failed)).Msg("failed to write audit log")
		return firstErr
	}
	return nil
}

func (l *Log) writeDay(day string, events []Event) error {
	path := filepath.Join(l.dir, day+".log")
	f, err := l.open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	out := &errWriter{w: f}
	w := zerolog.New(out)
	for _, e := range events {
		if out.err != nil {
			break
		}
		ev := w.Log().
			Time("time", e.At).
			Str("action", e.Kind).
			Str("player", e.Player)
		if e.ID != uuid.Nil {
			ev = ev.Str("uuid", e.ID.String())
		}
		if e.Actor != "" {
			ev = ev.Str("by", e.Actor)
		}
		if e.Detail != "" {
			ev = ev.Str("detail", e.Detail)
		}
		ev.Send()
	}

	closeErr := f.Close()
	if out.err != nil {
		return fmt.Errorf("failed to write %s: %w", path, out.err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return nil
}

func (l *Log) requeue(events []Event) {
	l.mu.Lock()
	l.pending = append(events, l.pending...)
	l.mu.Unlock()
}

// Run flushes every interval and once more when ctx is cancelled.
func (l *Log) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := l.Flush(); err != nil {
				l.logger.Error().Err(err).Msg("final audit flush failed")
			}
			return
		case <-ticker.C:
			_ = l.Flush()
		}
	}
}

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/checkpoint/internal/logger"
)

// Recorder is the single writer in front of a Store. All appends are
// serialised, so concurrent callers never interleave partial rows.
type Recorder struct {
	store       Store
	now         func() time.Time
	dedupeDaily bool
	mutex       sync.Mutex
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock replaces time.Now for stamping records.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithDailyDedupe skips an append when the id already has a record that day.
func WithDailyDedupe(on bool) RecorderOption {
	return func(r *Recorder) { r.dedupeDaily = on }
}

// NewRecorder wraps s.
func NewRecorder(s Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one attendance row stamped with the current date and time.
// skipped is true when daily dedupe is on and the id was already present.
func (r *Recorder) Record(ctx context.Context, id, name string) (rec Record, skipped bool, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec = NewRecord(id, name, r.now())

	if r.dedupeDaily {
		exists, err := r.store.Exists(ctx, id, rec.Date)
		if err != nil {
			return rec, false, fmt.Errorf("failed to check attendance: %w", err)
		}
		if exists {
			logger.Info("Attendance already recorded today",
				logger.LoggerOptions{Key: "id", Data: id},
				logger.LoggerOptions{Key: "date", Data: rec.Date},
			)
			return rec, true, nil
		}
	}

	if err := r.store.Append(ctx, rec); err != nil {
		return rec, false, fmt.Errorf("failed to record attendance: %w", err)
	}

	logger.Info("Attendance saved", logger.LoggerOptions{Key: "record", Data: rec})
	return rec, false, nil
}

// List returns stored records, optionally for one date.
func (r *Recorder) List(ctx context.Context, date string) ([]Record, error) {
	return r.store.List(ctx, date)
}

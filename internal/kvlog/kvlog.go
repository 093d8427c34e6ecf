// Package kvlog buffers scalar key/value pairs between dumps. A dump writes
// them to the structured log and to a store, and makes them visible as the
// latest value of each key.
package kvlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"duelrl/internal/model"
	"duelrl/internal/storage"
)

type Logger struct {
	runID string
	store storage.Store
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	pending map[string]float64
	latest  map[string]float64
}

// New returns a logger for runID. store may be nil, in which case dumps only
// go to the structured log.
func New(runID string, store storage.Store, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		runID:   runID,
		store:   store,
		log:     logger.Named("kv").With(zap.String("run_id", runID)),
		now:     time.Now,
		pending: make(map[string]float64),
		latest:  make(map[string]float64),
	}
}

// LogKV records value for key; a later call for the same key before the next
// dump overwrites it.
func (l *Logger) LogKV(key string, value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[key] = value
}

// Latest returns the value of key from the most recent dump that carried it.
func (l *Logger) Latest(key string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.latest[key]
	return v, ok
}

// Snapshot returns a copy of every latest value.
func (l *Logger) Snapshot() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.latest))
	for k, v := range l.latest {
		out[k] = v
	}
	return out
}

// Dump flushes the pending values at step and returns the written records in
// key order.
func (l *Logger) Dump(ctx context.Context, step int64) ([]model.ScalarRecord, error) {
	l.mu.Lock()
	keys := make([]string, 0, len(l.pending))
	for k := range l.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	createdAt := l.now().UTC().Format(time.RFC3339Nano)
	records := make([]model.ScalarRecord, 0, len(keys))
	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.Int64("step", step))
	for _, k := range keys {
		v := l.pending[k]
		records = append(records, model.ScalarRecord{
			VersionedRecord: storage.Versioned(),
			RunID:           l.runID,
			Step:            step,
			Key:             k,
			Value:           v,
			CreatedAtUTC:    createdAt,
		})
		fields = append(fields, zap.Float64(k, v))
		l.latest[k] = v
	}
	l.pending = make(map[string]float64)
	l.mu.Unlock()

	if len(records) == 0 {
		return nil, nil
	}
	l.log.Info("dump", fields...)
	if l.store != nil {
		if err := l.store.SaveScalars(ctx, records); err != nil {
			return records, fmt.Errorf("persist scalars at step %d: %w", step, err)
		}
	}
	return records, nil
}

package storage

import (
	"context"
	"errors"

	"duelrl/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists dumped scalars and run summaries.
type Store interface {
	Init(ctx context.Context) error
	SaveScalars(ctx context.Context, records []model.ScalarRecord) error
	// ListScalars returns a run's scalars ordered by step then insertion.
	// An empty key matches every key.
	ListScalars(ctx context.Context, runID, key string) ([]model.ScalarRecord, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}

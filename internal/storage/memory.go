package storage

import (
	"context"
	"sort"
	"sync"

	"duelrl/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	scalars     map[string][]model.ScalarRecord
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.scalars = make(map[string][]model.ScalarRecord)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveScalars(_ context.Context, records []model.ScalarRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	for _, record := range records {
		s.scalars[record.RunID] = append(s.scalars[record.RunID], record)
	}
	return nil
}

func (s *MemoryStore) ListScalars(_ context.Context, runID, key string) ([]model.ScalarRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.ScalarRecord, 0, len(s.scalars[runID]))
	for _, record := range s.scalars[runID] {
		if key == "" || record.Key == key {
			out = append(out, record)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.RunID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, ErrNotInitialized
	}
	run, ok := s.runs[runID]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sortRunsNewestFirst(out)
	return out, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	if run.Final != nil {
		final := make(map[string]float64, len(run.Final))
		for k, v := range run.Final {
			final[k] = v
		}
		run.Final = final
	}
	return run
}

func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
}

package anneal

import (
	"fmt"
	"sort"
	"sync"

	"duelrl/internal/model"
)

// Scheduler maps shaping-term names to their active annealer. It is owned by
// the composition root and handed to consumers explicitly.
type Scheduler struct {
	clock *Clock

	mu          sync.RWMutex
	annealers   map[string]Annealer
	conditional map[string]struct{}
}

func NewScheduler(clock *Clock) *Scheduler {
	if clock == nil {
		clock = &Clock{}
	}
	return &Scheduler{
		clock:       clock,
		annealers:   make(map[string]Annealer),
		conditional: make(map[string]struct{}),
	}
}

func (s *Scheduler) Clock() *Clock { return s.clock }

// SetAnnealer registers a for term, replacing any prior annealer in one step.
func (s *Scheduler) SetAnnealer(term string, a Annealer) error {
	if a == nil {
		return fmt.Errorf("%w: nil annealer for term %q", model.ErrConfiguration, term)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annealers[term] = a
	if _, ok := a.(*Conditional); !ok {
		delete(s.conditional, term)
	}
	return nil
}

// SetConditional flags term as metric-driven.
func (s *Scheduler) SetConditional(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditional[term] = struct{}{}
}

func (s *Scheduler) IsConditional(term string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conditional[term]
	return ok
}

func (s *Scheduler) Annealer(term string) (Annealer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.annealers[term]
	return a, ok
}

// Coefficient reads the current coefficient for term.
func (s *Scheduler) Coefficient(term string) (float64, error) {
	a, ok := s.Annealer(term)
	if !ok {
		return 0, fmt.Errorf("%w: no annealer registered for %q", model.ErrConfiguration, term)
	}
	return a.Coefficient(), nil
}

func (s *Scheduler) Terms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.annealers))
	for term := range s.annealers {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Advance moves the clock by steps and gives every conditional term one tick.
func (s *Scheduler) Advance(steps int64) {
	s.clock.Add(steps)

	s.mu.RLock()
	var advancers []Advancer
	for term := range s.conditional {
		if adv, ok := s.annealers[term].(Advancer); ok {
			advancers = append(advancers, adv)
		}
	}
	s.mu.RUnlock()

	for _, adv := range advancers {
		adv.Advance()
	}
}

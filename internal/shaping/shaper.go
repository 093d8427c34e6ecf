// Package shaping folds a per-term reward breakdown into one scalar by
// weighting each term, summing per reward type, and blending the sparse and
// dense totals with an annealed coefficient.
package shaping

import (
	"fmt"
	"sort"

	"duelrl/internal/anneal"
	"duelrl/internal/model"
)

type termWeight struct {
	rewType string
	weight  float64
}

// Totals are the weighted per-type sums of one breakdown.
type Totals struct {
	Sparse float64
	Dense  float64
}

type Options struct {
	TotalTimesteps int64
	Metrics        anneal.MetricSource
}

type Shaper struct {
	sched *anneal.Scheduler
	terms map[string]termWeight
}

// New validates params, registers the blend annealer on sched and inverts
// the weight table into term -> (type, weight).
func New(params Params, sched *anneal.Scheduler, opts Options) (*Shaper, error) {
	if err := ValidateWeights(params.Weights); err != nil {
		return nil, err
	}
	terms, err := invert(params.Weights)
	if err != nil {
		return nil, err
	}
	if _, err := ResolveAnnealer(params, sched, opts.TotalTimesteps, opts.Metrics); err != nil {
		return nil, err
	}
	return &Shaper{sched: sched, terms: terms}, nil
}

// Terms lists the configured reward terms.
func (s *Shaper) Terms() []string {
	out := make([]string, 0, len(s.terms))
	for term := range s.terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Totals sums weight*value per reward type. Terms outside the weight table
// are ignored.
func (s *Shaper) Totals(breakdown map[string]float64) Totals {
	var totals Totals
	for term, value := range breakdown {
		tw, ok := s.terms[term]
		if !ok {
			continue
		}
		switch tw.rewType {
		case TypeSparse:
			totals.Sparse += tw.weight * value
		case TypeDense:
			totals.Dense += tw.weight * value
		}
	}
	return totals
}

// Coefficient reads the active blend coefficient.
func (s *Shaper) Coefficient() (float64, error) {
	c, err := s.sched.Coefficient(Term)
	if err != nil {
		return 0, err
	}
	if c < 0 || c > 1 || c != c {
		return 0, fmt.Errorf("%w: annealing coefficient %v outside [0, 1]", model.ErrContractViolation, c)
	}
	return c, nil
}

// Shape returns sparse*(1-c) + dense*c for the current coefficient c.
func (s *Shaper) Shape(breakdown map[string]float64) (float64, error) {
	c, err := s.Coefficient()
	if err != nil {
		return 0, err
	}
	return Blend(s.Totals(breakdown), c), nil
}

// Breakdown pulls the configured terms out of an info map. A configured term
// carrying a non-numeric value breaks the environment contract; absent terms
// are skipped.
func (s *Shaper) Breakdown(info model.Info) (map[string]float64, error) {
	out := make(map[string]float64, len(s.terms))
	for term := range s.terms {
		if _, present := info[term]; !present {
			continue
		}
		v, ok := info.Number(term)
		if !ok {
			return nil, fmt.Errorf("%w: info term %q is %T, want a number", model.ErrContractViolation, term, info[term])
		}
		out[term] = v
	}
	return out, nil
}

func Blend(t Totals, c float64) float64 {
	return t.Sparse*(1-c) + t.Dense*c
}

func invert(weights map[string]map[string]float64) (map[string]termWeight, error) {
	out := make(map[string]termWeight)
	for _, rewType := range []string{TypeSparse, TypeDense} {
		for term, weight := range weights[rewType] {
			if prev, dup := out[term]; dup {
				return nil, fmt.Errorf("%w: reward term %q listed under both %s and %s", model.ErrConfiguration, term, prev.rewType, rewType)
			}
			out[term] = termWeight{rewType: rewType, weight: weight}
		}
	}
	return out, nil
}

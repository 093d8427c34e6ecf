package shaping

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"duelrl/internal/anneal"
	"duelrl/internal/model"
)

const (
	TypeSparse = "sparse"
	TypeDense  = "dense"

	// Term is the scheduler key of the sparse/dense blend coefficient.
	Term = "rew_shape"
)

// Params is the shaping section of a run configuration.
type Params struct {
	Weights map[string]map[string]float64 `yaml:"weights" json:"weights"`

	// Annealer names the schedule explicitly: constant, linear or
	// conditional. Empty infers it from metric and anneal_frac.
	Annealer string `yaml:"annealer,omitempty" json:"annealer,omitempty"`

	AnnealFrac *float64 `yaml:"anneal_frac,omitempty" json:"anneal_frac,omitempty"`

	Metric              string   `yaml:"metric,omitempty" json:"metric,omitempty"`
	Threshold           float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Operator            string   `yaml:"operator,omitempty" json:"operator,omitempty"`
	MinWait             int      `yaml:"min_wait,omitempty" json:"min_wait,omitempty"`
	MaxWait             int      `yaml:"max_wait,omitempty" json:"max_wait,omitempty"`
	DecrementProportion float64  `yaml:"decrement_proportion,omitempty" json:"decrement_proportion,omitempty"`
	StartVal            *float64 `yaml:"start_val,omitempty" json:"start_val,omitempty"`
	EndVal              *float64 `yaml:"end_val,omitempty" json:"end_val,omitempty"`
}

// ValidateWeights requires the reward-type tags to be exactly sparse and
// dense.
func ValidateWeights(weights map[string]map[string]float64) error {
	if len(weights) != 2 || !hasKey(weights, TypeSparse) || !hasKey(weights, TypeDense) {
		return fmt.Errorf("%w: shaping weights must have exactly the keys {%s, %s}, got {%s}",
			model.ErrConfiguration, TypeSparse, TypeDense, strings.Join(sortedKeys(weights), ", "))
	}
	for rewType, terms := range weights {
		for term, weight := range terms {
			if math.IsNaN(weight) || math.IsInf(weight, 0) {
				return fmt.Errorf("%w: weight %s.%s must be finite", model.ErrConfiguration, rewType, term)
			}
		}
	}
	return nil
}

// ResolveAnnealer picks and registers the blend annealer: a metric makes it
// conditional, an anneal fraction makes it linear over that share of
// totalTimesteps, otherwise it is a constant 0.5.
func ResolveAnnealer(params Params, sched *anneal.Scheduler, totalTimesteps int64, metrics anneal.MetricSource) (anneal.Annealer, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: shaping requires a scheduler", model.ErrConfiguration)
	}

	name := ""
	if strings.TrimSpace(params.Annealer) != "" {
		name = anneal.NormalizeName(params.Annealer)
		if params.Metric != "" && name != "conditional" {
			return nil, fmt.Errorf("%w: metric %q set for %s annealer", model.ErrConfiguration, params.Metric, name)
		}
		if name == "conditional" && params.Metric == "" {
			return nil, fmt.Errorf("%w: conditional annealer requires a metric", model.ErrConfiguration)
		}
	}

	var annealer anneal.Annealer
	switch {
	case name == "constant" || name == "linear":
		a, err := namedAnnealer(name, params, sched, totalTimesteps)
		if err != nil {
			return nil, err
		}
		annealer = a
	case name != "" && name != "conditional":
		return nil, fmt.Errorf("%w: unsupported annealer: %s", model.ErrConfiguration, params.Annealer)
	case params.Metric != "":
		cfg := anneal.DefaultConditionalConfig(params.Metric)
		cfg.Threshold = params.Threshold
		if params.Operator != "" {
			cfg.Operator = params.Operator
		}
		cfg.MinWait = params.MinWait
		cfg.MaxWait = params.MaxWait
		if params.DecrementProportion != 0 {
			cfg.DecrementProportion = params.DecrementProportion
		}
		if params.StartVal != nil {
			cfg.Start = *params.StartVal
		}
		if params.EndVal != nil {
			cfg.End = *params.EndVal
		}
		cond, err := anneal.NewConditional(cfg, metrics)
		if err != nil {
			return nil, err
		}
		sched.SetConditional(Term)
		annealer = cond
	case params.AnnealFrac != nil:
		frac := *params.AnnealFrac
		if frac <= 0 || frac > 1 {
			return nil, fmt.Errorf("%w: anneal_frac must be in (0, 1], got %v", model.ErrConfiguration, frac)
		}
		if totalTimesteps <= 0 {
			return nil, fmt.Errorf("%w: anneal_frac requires total timesteps > 0", model.ErrConfiguration)
		}
		duration := int64(math.Round(frac * float64(totalTimesteps)))
		if duration < 1 {
			duration = 1
		}
		linear, err := anneal.NewLinear(1, 0, duration, sched.Clock())
		if err != nil {
			return nil, err
		}
		annealer = linear
	default:
		annealer = anneal.Constant{Value: 0.5}
	}

	if err := sched.SetAnnealer(Term, annealer); err != nil {
		return nil, err
	}
	return annealer, nil
}

// namedAnnealer builds an explicitly named step-driven schedule. Constant
// holds start_val (default 0.5); linear runs start_val -> end_val (default
// 1 -> 0) over anneal_frac of the run, or the whole run when unset.
func namedAnnealer(name string, params Params, sched *anneal.Scheduler, totalTimesteps int64) (anneal.Annealer, error) {
	start, end := 1.0, 0.0
	if name == "constant" {
		start = 0.5
	}
	if params.StartVal != nil {
		start = *params.StartVal
	}
	if params.EndVal != nil {
		end = *params.EndVal
	}
	var duration int64
	if name == "linear" {
		if totalTimesteps <= 0 {
			return nil, fmt.Errorf("%w: linear annealer requires total timesteps > 0", model.ErrConfiguration)
		}
		frac := 1.0
		if params.AnnealFrac != nil {
			frac = *params.AnnealFrac
		}
		if frac <= 0 || frac > 1 {
			return nil, fmt.Errorf("%w: anneal_frac must be in (0, 1], got %v", model.ErrConfiguration, frac)
		}
		duration = int64(math.Round(frac * float64(totalTimesteps)))
		if duration < 1 {
			duration = 1
		}
	}
	return anneal.FromName(name, start, end, duration, sched.Clock())
}

func hasKey(m map[string]map[string]float64, key string) bool {
	_, ok := m[key]
	return ok
}

func sortedKeys(m map[string]map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package anneal produces the coefficient that blends sparse and dense reward
// regimes over training progress or an external metric.
package anneal

import (
	"fmt"
	"strings"
	"sync"

	"duelrl/internal/model"
)

// Annealer reports a coefficient in [0, 1]. Coefficient is a pure read: it
// never advances internal counters.
type Annealer interface {
	Name() string
	Coefficient() float64
}

// Advancer is implemented by annealers whose value moves when the controller
// says so rather than through the shared clock.
type Advancer interface {
	Advance()
}

// MetricSource exposes the most recently logged scalar metrics.
type MetricSource interface {
	Latest(key string) (float64, bool)
}

// Clock counts elapsed environment steps. The training controller advances
// it; annealers only read it.
type Clock struct {
	mu      sync.RWMutex
	elapsed int64
}

func (c *Clock) Add(steps int64) {
	if steps <= 0 {
		return
	}
	c.mu.Lock()
	c.elapsed += steps
	c.mu.Unlock()
}

func (c *Clock) Set(elapsed int64) {
	if elapsed < 0 {
		elapsed = 0
	}
	c.mu.Lock()
	c.elapsed = elapsed
	c.mu.Unlock()
}

func (c *Clock) Elapsed() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.elapsed
}

type Constant struct {
	Value float64
}

func NewConstant(value float64) (Constant, error) {
	if err := checkUnit("constant value", value); err != nil {
		return Constant{}, err
	}
	return Constant{Value: value}, nil
}

func (Constant) Name() string { return "constant" }

func (c Constant) Coefficient() float64 { return c.Value }

// Linear interpolates from Start to End over Duration clock steps and holds
// End afterwards.
type Linear struct {
	Start    float64
	End      float64
	Duration int64
	clock    *Clock
}

func NewLinear(start, end float64, duration int64, clock *Clock) (*Linear, error) {
	if err := checkUnit("linear start", start); err != nil {
		return nil, err
	}
	if err := checkUnit("linear end", end); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: linear duration must be > 0, got %d", model.ErrConfiguration, duration)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: linear annealer requires a clock", model.ErrConfiguration)
	}
	return &Linear{Start: start, End: end, Duration: duration, clock: clock}, nil
}

func (*Linear) Name() string { return "linear" }

func (l *Linear) Coefficient() float64 {
	frac := float64(l.clock.Elapsed()) / float64(l.Duration)
	if frac > 1 {
		frac = 1
	}
	lo, hi := l.Start, l.End
	if lo > hi {
		lo, hi = hi, lo
	}
	return sat(l.Start+(l.End-l.Start)*frac, lo, hi)
}

// FromName builds a step-driven annealer from a policy name, mirroring the
// config switch used for other scheduling policies. Conditional annealers
// need a metric source and go through NewConditional instead.
func FromName(name string, start, end float64, duration int64, clock *Clock) (Annealer, error) {
	switch NormalizeName(name) {
	case "constant":
		return NewConstant(start)
	case "linear":
		return NewLinear(start, end, duration, clock)
	case "conditional":
		return nil, fmt.Errorf("%w: conditional annealer requires a metric configuration", model.ErrConfiguration)
	default:
		return nil, fmt.Errorf("%w: unsupported annealer: %s", model.ErrConfiguration, name)
	}
}

func NormalizeName(name string) string {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "const", "constant":
		return "constant"
	case "linear", "linear_decay":
		return "linear"
	case "conditional", "cond":
		return "conditional"
	default:
		return name
	}
}

func checkUnit(field string, v float64) error {
	if v < 0 || v > 1 || v != v {
		return fmt.Errorf("%w: %s must be in [0, 1], got %v", model.ErrConfiguration, field, v)
	}
	return nil
}

func sat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package anneal

import (
	"fmt"
	"strings"
	"sync"

	"duelrl/internal/model"
)

// ConditionalConfig mirrors the metric-driven keys of the shaping params.
type ConditionalConfig struct {
	Start               float64
	End                 float64
	Metric              string
	Threshold           float64
	Operator            string
	MinWait             int
	MaxWait             int
	DecrementProportion float64
}

// DefaultConditionalConfig returns the defaults applied to unset fields.
func DefaultConditionalConfig(metric string) ConditionalConfig {
	return ConditionalConfig{
		Start:               1,
		End:                 0,
		Metric:              metric,
		Operator:            ">",
		MinWait:             0,
		MaxWait:             0,
		DecrementProportion: 0.05,
	}
}

// Conditional steps its value from Start towards End each time the watched
// metric crosses the threshold, or when MaxWait advances pass without a
// crossing.
type Conditional struct {
	cfg     ConditionalConfig
	source  MetricSource
	compare func(metric, threshold float64) bool

	mu    sync.RWMutex
	value float64
	wait  int
}

// NewConditional fails when no metric source is wired.
func NewConditional(cfg ConditionalConfig, source MetricSource) (*Conditional, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: conditional annealer on %q requires a metric source", model.ErrConfiguration, cfg.Metric)
	}
	if strings.TrimSpace(cfg.Metric) == "" {
		return nil, fmt.Errorf("%w: conditional annealer requires a metric name", model.ErrConfiguration)
	}
	if err := checkUnit("conditional start", cfg.Start); err != nil {
		return nil, err
	}
	if err := checkUnit("conditional end", cfg.End); err != nil {
		return nil, err
	}
	if cfg.DecrementProportion <= 0 || cfg.DecrementProportion > 1 {
		return nil, fmt.Errorf("%w: decrement proportion must be in (0, 1], got %v", model.ErrConfiguration, cfg.DecrementProportion)
	}
	if cfg.MinWait < 0 || cfg.MaxWait < 0 {
		return nil, fmt.Errorf("%w: conditional waits must be >= 0", model.ErrConfiguration)
	}
	compare, err := comparator(cfg.Operator)
	if err != nil {
		return nil, err
	}
	return &Conditional{
		cfg:     cfg,
		source:  source,
		compare: compare,
		value:   cfg.Start,
	}, nil
}

func (*Conditional) Name() string { return "conditional" }

func (c *Conditional) Coefficient() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Conditional) Metric() string { return c.cfg.Metric }

// Advance consumes one controller tick.
func (c *Conditional) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wait++
	if c.wait < c.cfg.MinWait {
		return
	}
	trigger := c.cfg.MaxWait > 0 && c.wait > c.cfg.MaxWait
	if metric, ok := c.source.Latest(c.cfg.Metric); ok && c.compare(metric, c.cfg.Threshold) {
		trigger = true
	}
	if !trigger {
		return
	}

	step := c.cfg.DecrementProportion * (c.cfg.Start - c.cfg.End)
	lo, hi := c.cfg.Start, c.cfg.End
	if lo > hi {
		lo, hi = hi, lo
	}
	c.value = sat(c.value-step, lo, hi)
	c.wait = 0
}

func comparator(op string) (func(a, b float64) bool, error) {
	switch strings.TrimSpace(op) {
	case "", ">", "gt":
		return func(a, b float64) bool { return a > b }, nil
	case ">=", "ge":
		return func(a, b float64) bool { return a >= b }, nil
	case "<", "lt":
		return func(a, b float64) bool { return a < b }, nil
	case "<=", "le":
		return func(a, b float64) bool { return a <= b }, nil
	default:
		return nil, fmt.Errorf("%w: unsupported conditional operator: %s", model.ErrConfiguration, op)
	}
}

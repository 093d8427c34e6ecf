// Package monitor tallies episode outcomes over a vectorized environment.
package monitor

import (
	"context"
	"fmt"

	"duelrl/internal/model"
	"duelrl/internal/scape"
	"duelrl/internal/vecenv"
)

// Report keys.
const (
	KeyWin0  = "game_win0"
	KeyWin1  = "game_win1"
	KeyTie   = "game_tie"
	KeyTotal = "game_total"
)

// Vectorized is the batch of environments the monitor wraps.
type Vectorized interface {
	NumEnvs() int
	Reset(ctx context.Context) ([][]float64, error)
	StepAsync(actions [][]float64) error
	StepWait(ctx context.Context) (vecenv.Batch, error)
}

// Sink accepts scalar key/value pairs.
type Sink interface {
	LogKV(key string, value float64)
}

// Counts is a tally of finished episodes.
type Counts struct {
	Win0  int
	Win1  int
	Ties  int
	Games int
}

func (c *Counts) add(o model.Outcome) {
	switch o {
	case model.OutcomeAgent0Wins:
		c.Win0++
	case model.OutcomeAgent1Wins:
		c.Win1++
	default:
		c.Ties++
	}
	c.Games++
}

type Monitor struct {
	venv     Vectorized
	agentIdx int

	outcomes []model.Outcome
	numGames int
	lifetime Counts
}

// New wraps venv. agentIdx is the slot of the background agent.
func New(venv Vectorized, agentIdx int) (*Monitor, error) {
	if venv == nil {
		return nil, fmt.Errorf("%w: monitor requires a vec env", model.ErrConfiguration)
	}
	if err := model.ValidateAgentIndex(agentIdx); err != nil {
		return nil, err
	}
	return &Monitor{venv: venv, agentIdx: agentIdx}, nil
}

func (m *Monitor) NumEnvs() int { return m.venv.NumEnvs() }

func (m *Monitor) Reset(ctx context.Context) ([][]float64, error) {
	return m.venv.Reset(ctx)
}

func (m *Monitor) StepAsync(actions [][]float64) error {
	return m.venv.StepAsync(actions)
}

// StepWait forwards to the wrapped batch and tallies every finished episode
// in env order.
func (m *Monitor) StepWait(ctx context.Context) (vecenv.Batch, error) {
	batch, err := m.venv.StepWait(ctx)
	if err != nil {
		return vecenv.Batch{}, err
	}
	for i, done := range batch.Dones {
		if !done {
			continue
		}
		m.record(m.Classify(batch.Infos[i]))
	}
	return batch, nil
}

func (m *Monitor) Step(ctx context.Context, actions [][]float64) (vecenv.Batch, error) {
	if err := m.StepAsync(actions); err != nil {
		return vecenv.Batch{}, err
	}
	return m.StepWait(ctx)
}

// Classify maps a finished episode's foreground info to an outcome. A winner
// marker is credited to the foreground slot and a loser marker to the
// background slot; neither is a tie.
func (m *Monitor) Classify(info model.Info) model.Outcome {
	switch {
	case info.Flag(scape.InfoWinner):
		return model.WinFor(1 - m.agentIdx)
	case info.Flag(scape.InfoLoser):
		return model.WinFor(m.agentIdx)
	default:
		return model.OutcomeTie
	}
}

func (m *Monitor) record(o model.Outcome) {
	m.outcomes = append(m.outcomes, o)
	m.numGames++
	m.lifetime.add(o)
}

// Pending returns the tally since the last report.
func (m *Monitor) Pending() Counts {
	var c Counts
	for _, o := range m.outcomes {
		c.add(o)
	}
	return c
}

// Lifetime returns the tally since construction; it is never drained.
func (m *Monitor) Lifetime() Counts { return m.lifetime }

// Report writes win and tie rates plus the game count to sink, then clears
// the tally. Rates are only written when at least one game finished.
func (m *Monitor) Report(sink Sink) Counts {
	c := m.Pending()
	if m.numGames > 0 {
		total := float64(m.numGames)
		sink.LogKV(KeyWin0, float64(c.Win0)/total)
		sink.LogKV(KeyWin1, float64(c.Win1)/total)
		sink.LogKV(KeyTie, float64(c.Ties)/total)
	}
	sink.LogKV(KeyTotal, float64(m.numGames))
	m.outcomes = m.outcomes[:0]
	m.numGames = 0
	return c
}

package model

// Outcome is the result of one finished episode, expressed as the slot that
// won or a tie.
type Outcome int

const (
	OutcomeTie        Outcome = -1
	OutcomeAgent0Wins Outcome = 0
	OutcomeAgent1Wins Outcome = 1
)

// WinFor returns the outcome in which slot idx won.
func WinFor(idx int) Outcome {
	if idx == 0 {
		return OutcomeAgent0Wins
	}
	return OutcomeAgent1Wins
}

func (o Outcome) String() string {
	switch o {
	case OutcomeAgent0Wins:
		return "win0"
	case OutcomeAgent1Wins:
		return "win1"
	default:
		return "tie"
	}
}

// Info is the per-agent side channel returned by environment steps.
type Info map[string]any

// Clone returns a shallow copy so callers can annotate without touching the
// environment's map.
func (i Info) Clone() Info {
	out := make(Info, len(i)+1)
	for k, v := range i {
		out[k] = v
	}
	return out
}

// Flag reports whether key is present with a truthy value: true, or a
// non-zero number. Any other type counts as unset.
func (i Info) Flag(key string) bool {
	v, ok := i[key]
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	n, ok := toFloat(v)
	return ok && n != 0
}

// Number returns key as float64 when it holds a numeric value.
func (i Info) Number(key string) (float64, bool) {
	v, ok := i[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	default:
		return 0, false
	}
}

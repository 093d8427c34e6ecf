// Package nn holds the small numeric building blocks used by fixed
// background policies: activations, saturation and dense layers.
package nn

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// SatSlice clamps every component to the symmetric range [-spread, spread]
// in place and returns values.
func SatSlice(values []float64, spread float64) []float64 {
	if spread < 0 {
		spread = -spread
	}
	for i, v := range values {
		values[i] = Sat(v, spread, -spread)
	}
	return values
}

// Apply runs fn over values in place.
func Apply(values []float64, fn ActivationFunc) []float64 {
	for i, v := range values {
		values[i] = fn(v)
	}
	return values
}

package model

import "fmt"

// Pair holds one value per agent slot of a two-agent environment. Slot
// selection by agent index lives here and nowhere else.
type Pair[T any] [2]T

// NewPair builds a pair from slot 0 and slot 1 values.
func NewPair[T any](slot0, slot1 T) Pair[T] {
	return Pair[T]{slot0, slot1}
}

// Get returns the value held by slot idx.
func (p Pair[T]) Get(idx int) T {
	return p[idx]
}

// Other returns the value held by the slot that is not idx.
func (p Pair[T]) Other(idx int) T {
	return p[1-idx]
}

// Split returns (value at idx, value at the other slot).
func (p Pair[T]) Split(idx int) (T, T) {
	return p[idx], p[1-idx]
}

// Assemble places own at slot idx and other at the remaining slot.
func Assemble[T any](idx int, own, other T) Pair[T] {
	var p Pair[T]
	p[idx] = own
	p[1-idx] = other
	return p
}

// ValidateAgentIndex rejects indices outside {0, 1}.
func ValidateAgentIndex(idx int) error {
	if idx != 0 && idx != 1 {
		return fmt.Errorf("%w: agent index must be 0 or 1, got %d", ErrConfiguration, idx)
	}
	return nil
}

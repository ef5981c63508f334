// Package entropy provides the injectable random source behind dice rolls.
// Resolution must be deterministic and replayable under test, so nothing in
// the engine reaches for global randomness; callers pick a seeded source for
// replays and a crypto-seeded one for live play.
package entropy

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Source draws integers for skill checks.
type Source interface {
	// Next returns a uniform value in [min, max]. Implementations must
	// treat max < min as max == min.
	Next(min, max int) int
}

// Seeded is a deterministic source backed by math/rand.
type Seeded struct {
	rng *rand.Rand
}

// NewSeeded returns a source producing the same roll sequence for the same
// seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a uniform value in [min, max].
func (s *Seeded) Next(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

// NewSeed generates a random seed using crypto/rand for live sessions where
// no replay seed was supplied.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Fixed always returns its configured value. Test helper for forcing an
// exact roll.
type Fixed int

// Next returns the fixed value clamped into [min, max].
func (f Fixed) Next(min, max int) int {
	v := int(f)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

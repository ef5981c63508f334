// Per-faction narrative progress accounting.
package engine

import (
	"log/slog"
	"math"
)

// Ledger stores one ordered score per objective triplet for each faction,
// alongside a parallel weight sequence. Score and weight lengths are fixed
// when the faction is registered and never change afterwards.
type Ledger struct {
	scores  map[string][]int
	weights map[string][]int
	order   []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		scores:  make(map[string][]int),
		weights: make(map[string][]int),
	}
}

// Register adds a faction with the given triplet weights. Scores start at
// zero. Negative weights are coerced to 0; weight defaulting is the roster
// loader's job. Re-registering an existing faction is a no-op so loaded
// rosters can be applied idempotently.
func (l *Ledger) Register(faction string, weights []int) {
	if faction == "" {
		return
	}
	if _, ok := l.scores[faction]; ok {
		return
	}
	ws := make([]int, len(weights))
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		ws[i] = w
	}
	l.scores[faction] = make([]int, len(ws))
	l.weights[faction] = ws
	l.order = append(l.order, faction)
}

// Known reports whether faction has been registered.
func (l *Ledger) Known(faction string) bool {
	_, ok := l.scores[faction]
	return ok
}

// Factions returns registered faction keys in registration order.
func (l *Ledger) Factions() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Scores returns a copy of the faction's current scores, or nil if unknown.
func (l *Ledger) Scores(faction string) []int {
	scores, ok := l.scores[faction]
	if !ok {
		return nil
	}
	out := make([]int, len(scores))
	copy(out, scores)
	return out
}

// Weights returns a copy of the faction's weights, or nil if unknown.
func (l *Ledger) Weights(faction string) []int {
	weights, ok := l.weights[faction]
	if !ok {
		return nil
	}
	out := make([]int, len(weights))
	copy(out, weights)
	return out
}

// WeightedScore returns round(Σ score·weight / Σ weight) for the faction.
// Unknown factions and zero weight sums report 0.
func (l *Ledger) WeightedScore(faction string) int {
	scores, ok := l.scores[faction]
	if !ok {
		return 0
	}
	weights := l.weights[faction]
	sum, weightSum := 0, 0
	for i, score := range scores {
		sum += score * weights[i]
		weightSum += weights[i]
	}
	if weightSum == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(weightSum)))
}

// FinalWeightedScore is the two-level weighted mean: each faction's
// WeightedScore weighted by that faction's total weight mass. Returns 0
// when the grand total of weight masses is 0.
func (l *Ledger) FinalWeightedScore() int {
	sum, massSum := 0, 0
	for _, faction := range l.order {
		mass := 0
		for _, w := range l.weights[faction] {
			mass += w
		}
		sum += l.WeightedScore(faction) * mass
		massSum += mass
	}
	if massSum == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(massSum)))
}

// ApplyScores overwrites scores from an assessment result keyed by faction.
// Unknown faction keys are skipped. Only the indices present in the incoming
// list are overwritten; oversized updates are truncated to the registered
// length. Incoming values are trusted to be pre-clamped by the scorer.
func (l *Ledger) ApplyScores(update map[string][]int) {
	for faction, incoming := range update {
		scores, ok := l.scores[faction]
		if !ok {
			slog.Debug("ignoring scores for unknown faction", "faction", faction)
			continue
		}
		n := len(incoming)
		if n > len(scores) {
			slog.Warn("truncating oversized score update",
				"faction", faction, "got", n, "want", len(scores))
			n = len(scores)
		}
		copy(scores[:n], incoming[:n])
	}
}

// Directed credibility tracking between factions.
package engine

import "log/slog"

const (
	// BaseCredibility is the starting value for any edge not covered by the
	// seed matrix.
	BaseCredibility = 50

	// DiagonalCredibility is the fixed self-trust value. The diagonal is
	// never touched by Adjust.
	DiagonalCredibility = 100
)

// Trust is a square matrix of directed credibility values keyed by faction
// name. Rows are the believing faction, columns the believed one. Cells stay
// within [0, 100]; the diagonal is pinned at DiagonalCredibility.
//
// Factions are registered lazily: any name that shows up as a source or
// target is materialized with default values on first use. Unknown factions
// are never an error.
type Trust struct {
	values map[string]map[string]int
	order  []string
}

// NewTrust builds a matrix from a seed of row → column → value. The seed may
// be nil or partial; missing cells fall back to BaseCredibility and the
// diagonal is forced to DiagonalCredibility regardless of seed content.
// Seed values outside [0, 100] are clamped.
func NewTrust(seed map[string]map[string]int) *Trust {
	t := &Trust{values: make(map[string]map[string]int)}

	// Collect every faction named anywhere in the seed, rows first so the
	// iteration order of a hand-written seed is preserved.
	for source := range seed {
		t.register(source)
	}
	for _, row := range seed {
		for target := range row {
			t.register(target)
		}
	}
	for _, source := range t.order {
		for _, target := range t.order {
			if source == target {
				continue
			}
			if v, ok := seed[source][target]; ok {
				t.values[source][target] = clamp(v, 0, 100)
			}
		}
	}
	return t
}

// register adds a faction with default edges against all known factions.
func (t *Trust) register(faction string) {
	if faction == "" {
		return
	}
	if _, ok := t.values[faction]; ok {
		return
	}
	t.order = append(t.order, faction)
	row := make(map[string]int, len(t.order))
	for _, other := range t.order {
		if other == faction {
			row[other] = DiagonalCredibility
		} else {
			row[other] = BaseCredibility
			t.values[other][faction] = BaseCredibility
		}
	}
	t.values[faction] = row
}

// EnsureFaction guarantees faction has a row and column. Idempotent; existing
// values are never altered. Empty names are ignored.
func (t *Trust) EnsureFaction(faction string) {
	if faction == "" {
		return
	}
	t.register(faction)
}

// Adjust shifts the source → target edge by delta, clamped to [0, 100].
// Missing source/target or a zero delta is a logged no-op, not an error.
// Saturating at a bound is silent.
func (t *Trust) Adjust(source, target string, delta int) {
	if source == "" || target == "" {
		slog.Debug("skipping credibility adjustment, missing faction",
			"source", source, "target", target)
		return
	}
	if delta == 0 {
		slog.Debug("skipping credibility adjustment, zero delta",
			"source", source, "target", target)
		return
	}
	t.register(source)
	t.register(target)
	if source == target {
		// Self-trust is fixed.
		return
	}
	current := t.values[source][target]
	next := clamp(current+delta, 0, 100)
	t.values[source][target] = next
	slog.Info("credibility adjusted",
		"source", source, "target", target,
		"from", current, "to", next, "delta", delta)
}

// Value returns the source → target edge. Both factions are ensured first,
// so a read can grow the matrix but never changes an existing cell.
func (t *Trust) Value(source, target string) int {
	t.register(source)
	t.register(target)
	return t.peek(source, target)
}

// peek reads an edge without materializing anything. Absent factions report
// the defaults they would be created with. Used by pure queries that must
// not mutate the matrix.
func (t *Trust) peek(source, target string) int {
	if source == target {
		return DiagonalCredibility
	}
	if row, ok := t.values[source]; ok {
		if v, ok := row[target]; ok {
			return v
		}
	}
	return BaseCredibility
}

// Snapshot returns an independent deep copy of the matrix.
func (t *Trust) Snapshot() map[string]map[string]int {
	out := make(map[string]map[string]int, len(t.values))
	for source, row := range t.values {
		copied := make(map[string]int, len(row))
		for target, v := range row {
			copied[target] = v
		}
		out[source] = copied
	}
	return out
}

// Factions returns the known faction names in registration order.
func (t *Trust) Factions() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

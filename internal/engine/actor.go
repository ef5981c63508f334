package engine

// Actor is the capability the resolver consumes. Concrete variants (YAML
// roster entries, scripted stand-ins in tests) implement it and are selected
// by composition.
type Actor interface {
	// Name is the character's short name.
	Name() string
	// Faction is the stakeholder group the actor represents. May be empty.
	Faction() string
	// ProgressKey identifies the actor's ledger entry; by convention the
	// faction name, falling back to the character name.
	ProgressKey() string
	// ProgressLabel is the human-readable form of ProgressKey.
	ProgressLabel() string
	// DisplayName is the full label used in conversation logs.
	DisplayName() string
	// Triplets returns the actor's objective triplets.
	Triplets() []Triplet
	// Weights returns the per-triplet weights, parallel to Triplets.
	Weights() []int
	// AttributeScore returns the numeric score backing a skill check for
	// the named attribute, 0 when unknown or empty.
	AttributeScore(attribute string) int
}

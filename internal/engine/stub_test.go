package engine

// stubActor is a minimal Actor for exercising the engine without a roster.
type stubActor struct {
	name     string
	faction  string
	score    int
	triplets []Triplet
	weights  []int
}

func newStubActor(name, faction string, score int) *stubActor {
	return &stubActor{
		name:     name,
		faction:  faction,
		score:    score,
		triplets: []Triplet{{Initial: "init", End: "end", Gap: "gap", Severity: "Small"}},
		weights:  []int{1},
	}
}

func (a *stubActor) Name() string          { return a.name }
func (a *stubActor) Faction() string       { return a.faction }
func (a *stubActor) ProgressKey() string   { return a.faction }
func (a *stubActor) ProgressLabel() string { return a.faction }
func (a *stubActor) DisplayName() string   { return a.name }
func (a *stubActor) Triplets() []Triplet   { return a.triplets }
func (a *stubActor) Weights() []int        { return a.weights }

func (a *stubActor) AttributeScore(string) int { return a.score }

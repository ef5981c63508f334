package player

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
	"github.com/mkaroly/parley/internal/llm"
)

func strongProfile(name, faction string) *actor.Profile {
	return actor.NewProfile(name, "ctx", []engine.Triplet{
		{Initial: "a", End: "b", Gap: "g", Severity: "Small"},
	}, actor.Persona{
		Faction:    faction,
		Attributes: map[string]int{"policy": 10},
	})
}

// scriptedGenerator replays canned option batches in order.
type scriptedGenerator struct {
	batches [][]engine.ActionOption
	calls   int
	err     error
}

func (g *scriptedGenerator) GenerateOptions(p *actor.Profile, playerLabel, playerFaction string,
	history []engine.HistoryEntry, conversation []engine.ConversationEntry, forceAction bool,
) ([]engine.ActionOption, error) {
	if g.err != nil {
		return nil, g.err
	}
	batch := g.batches[g.calls%len(g.batches)]
	g.calls++
	return batch, nil
}

func newGameSession(profiles []*actor.Profile, rng entropy.Source) *engine.Session {
	actors := make([]engine.Actor, len(profiles))
	for i, p := range profiles {
		actors[i] = p
	}
	cfg := engine.DefaultConfig()
	cfg.Objective = "win"
	return engine.NewSession(cfg, actors, nil, rng)
}

func TestTakeTurnPerformsActionAndAppliesAssessment(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	gen := &scriptedGenerator{batches: [][]engine.ActionOption{{
		{Text: "I will act", Type: engine.OptionAction, RelatedAttribute: "policy"},
	}}}
	d := NewDriver(s, profiles, gen, llm.StaticAssessor{"Governments": {90}}, 4)

	res, performed, err := d.TakeTurn(NewActionFirstPlayer(entropy.Fixed(0)))
	require.NoError(t, err)
	require.True(t, performed)
	assert.True(t, res.Success)
	assert.Len(t, s.History(), 1)
	assert.Equal(t, 90, s.WeightedScore("Governments"))
}

func TestTakeTurnDialogueOnlyExhaustsExchanges(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	gen := &scriptedGenerator{batches: [][]engine.ActionOption{{
		{Text: "just chatting", Type: engine.OptionDialogue},
	}}}
	d := NewDriver(s, profiles, gen, llm.StaticAssessor{}, 3)

	_, performed, err := d.TakeTurn(NewRandomPlayer(entropy.Fixed(0)))
	require.NoError(t, err)
	assert.False(t, performed)
	assert.Empty(t, s.History())
	assert.Equal(t, 3, gen.calls)
}

func TestTakeTurnSurvivesGeneratorOutage(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	gen := &scriptedGenerator{err: fmt.Errorf("model down")}
	d := NewDriver(s, profiles, gen, llm.StaticAssessor{}, 3)

	_, performed, err := d.TakeTurn(NewRandomPlayer(entropy.Fixed(0)))
	require.NoError(t, err)
	assert.False(t, performed)
}

func TestTakeTurnRerollLoopStopsWhenUnaffordable(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	// Every roll is 1 and the contested action keeps failing; the player
	// rerolls until the credibility edge cannot cover the next cost.
	s := newGameSession(profiles, entropy.Fixed(1))
	gen := &scriptedGenerator{batches: [][]engine.ActionOption{{
		{Text: "hopeless gamble", Type: engine.OptionAction, RelatedTriplet: 1},
	}}}
	d := NewDriver(s, profiles, gen, llm.StaticAssessor{}, 4)

	res, performed, err := d.TakeTurn(NewActionFirstPlayer(entropy.Fixed(0)))
	require.NoError(t, err)
	require.True(t, performed)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Rerolls)
	assert.Equal(t, 0, s.Credibility().Value(s.PlayerFaction(), "Governments"))
}

func TestRandomPlayerSelectsByRNG(t *testing.T) {
	profiles := []*actor.Profile{
		strongProfile("A", "Governments"),
		strongProfile("B", "Regulators"),
	}
	s := newGameSession(profiles, entropy.Fixed(20))
	pl := NewRandomPlayer(entropy.Fixed(1))

	assert.Equal(t, "B", pl.SelectActor(profiles, s).Name())
	options := []engine.ActionOption{{Text: "x"}, {Text: "y"}}
	assert.Equal(t, "y", pl.SelectOption(profiles[0], options, s).Text)
}

func TestActionFirstPlayerPrefersActions(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	pl := NewActionFirstPlayer(entropy.Fixed(0))

	options := []engine.ActionOption{
		{Text: "talk", Type: engine.OptionDialogue},
		{Text: "move", Type: engine.OptionAction},
	}
	assert.Equal(t, "move", pl.SelectOption(profiles[0], options, s).Text)

	dialogueOnly := []engine.ActionOption{{Text: "talk", Type: engine.OptionDialogue}}
	assert.Equal(t, "talk", pl.SelectOption(profiles[0], dialogueOnly, s).Text)
}

// scriptedCompleter returns canned replies in order.
type scriptedCompleter struct {
	replies []string
	calls   int
	err     error
}

func (c *scriptedCompleter) Complete(system, user string, maxTokens int) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	return reply, nil
}

func (c *scriptedCompleter) Enabled() bool { return true }

func TestStrategistSelectsActorByName(t *testing.T) {
	profiles := []*actor.Profile{
		strongProfile("Helena Vale", "Governments"),
		strongProfile("Rhea Okoye", "Regulators"),
	}
	s := newGameSession(profiles, entropy.Fixed(20))
	pl := NewStrategistPlayer(&scriptedCompleter{replies: []string{"I choose Rhea Okoye."}}, "guide")

	assert.Equal(t, "Rhea Okoye", pl.SelectActor(profiles, s).Name())
}

func TestStrategistFallsBackOnModelError(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	pl := NewStrategistPlayer(&scriptedCompleter{err: fmt.Errorf("down")}, "guide")

	assert.Equal(t, "Vale", pl.SelectActor(profiles, s).Name())
	options := []engine.ActionOption{{Text: "first"}, {Text: "second"}}
	assert.Equal(t, "first", pl.SelectOption(profiles[0], options, s).Text)
	assert.False(t, pl.ShouldReroll(profiles[0], engine.Resolution{}, s))
}

func TestStrategistParsesOptionNumber(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(20))
	pl := NewStrategistPlayer(&scriptedCompleter{replies: []string{"Option 2. is best"}}, "guide")

	options := []engine.ActionOption{{Text: "first"}, {Text: "second"}}
	assert.Equal(t, "second", pl.SelectOption(profiles[0], options, s).Text)
}

func TestStrategistRerollReadsYes(t *testing.T) {
	profiles := []*actor.Profile{strongProfile("Vale", "Governments")}
	s := newGameSession(profiles, entropy.Fixed(1))
	_, err := s.RecordAction(profiles[0], engine.ActionOption{Text: "x", Type: engine.OptionAction, RelatedTriplet: 1})
	require.NoError(t, err)

	yes := NewStrategistPlayer(&scriptedCompleter{replies: []string{"YES, retry."}}, "guide")
	res, ok := s.LastResolution()
	require.True(t, ok)
	assert.True(t, yes.ShouldReroll(profiles[0], res, s))

	no := NewStrategistPlayer(&scriptedCompleter{replies: []string{"No."}}, "guide")
	assert.False(t, no.ShouldReroll(profiles[0], res, s))
}

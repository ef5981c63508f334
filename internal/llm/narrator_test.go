package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// stubCompleter returns a canned response and records the last prompt.
type stubCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Complete(system, user string, maxTokens int) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	return s.reply, s.err
}

func (s *stubCompleter) Enabled() bool { return true }

func testProfile() *actor.Profile {
	return actor.NewProfile("Helena Vale", "Faction context here.", []engine.Triplet{
		{Initial: "a", End: "b", Gap: "g1", Severity: "Critical"},
		{Initial: "c", End: "d", Gap: "g2", Severity: "Small"},
	}, actor.Persona{Faction: "Governments", Attributes: map[string]int{"policy": 8}})
}

func TestParseOptionsJSONArray(t *testing.T) {
	raw := `[
		{"text": "I will draft the treaty.", "type": "action", "related-triplet": 1, "related-attribute": "Policy"},
		{"text": "Tell me more.", "type": "chat", "related-triplet": "None", "related-attribute": null}
	]`
	options := parseOptions(raw, 2)

	require.Len(t, options, 2)
	assert.Equal(t, engine.OptionAction, options[0].Type)
	assert.Equal(t, 1, options[0].RelatedTriplet)
	assert.Equal(t, "policy", options[0].RelatedAttribute)
	assert.Equal(t, engine.OptionDialogue, options[1].Type)
	assert.Equal(t, 0, options[1].RelatedTriplet)
	assert.Empty(t, options[1].RelatedAttribute)
}

func TestParseOptionsStripsCodeFence(t *testing.T) {
	raw := "```json\n[{\"text\": \"hello\", \"type\": \"chat\"}]\n```"
	options := parseOptions(raw, 0)

	require.Len(t, options, 1)
	assert.Equal(t, "hello", options[0].Text)
}

func TestParseOptionsAcceptsActionsWrapper(t *testing.T) {
	raw := `{"actions": [{"text": "move", "type": "action"}]}`
	options := parseOptions(raw, 0)

	require.Len(t, options, 1)
	assert.Equal(t, engine.OptionAction, options[0].Type)
}

func TestParseOptionsEmbeddedArray(t *testing.T) {
	raw := `Here are the options: [{"text": "ok", "type": "chat"}] as requested.`
	options := parseOptions(raw, 0)

	require.Len(t, options, 1)
	assert.Equal(t, "ok", options[0].Text)
}

func TestParseOptionsNumberedFallback(t *testing.T) {
	raw := "1. Open the talks\n2) Stall for time\nnot numbered\n3. Walk away\n4. too many"
	options := parseOptions(raw, 0)

	require.Len(t, options, maxOptions)
	assert.Equal(t, "Open the talks", options[0].Text)
	assert.Equal(t, engine.OptionDialogue, options[0].Type)
}

func TestParseOptionsCapsAtThree(t *testing.T) {
	raw := `[{"text":"a","type":"chat"},{"text":"b","type":"chat"},{"text":"c","type":"chat"},{"text":"d","type":"chat"}]`
	assert.Len(t, parseOptions(raw, 0), maxOptions)
}

func TestParseOptionsNormalizesTripletRange(t *testing.T) {
	raw := `[
		{"text": "a", "type": "action", "related-triplet": 5},
		{"text": "b", "type": "action", "related-triplet": "2"},
		{"text": "c", "type": "action", "related-triplet": "garbled"}
	]`
	options := parseOptions(raw, 2)

	require.Len(t, options, 3)
	assert.Equal(t, 0, options[0].RelatedTriplet) // out of range
	assert.Equal(t, 2, options[1].RelatedTriplet)
	assert.Equal(t, 0, options[2].RelatedTriplet)
}

func TestParseOptionsSkipsEmptyText(t *testing.T) {
	raw := `[{"text": "   ", "type": "chat"}, {"text": "real", "type": "chat"}]`
	options := parseOptions(raw, 0)

	require.Len(t, options, 1)
	assert.Equal(t, "real", options[0].Text)
}

func TestGenerateOptionsBuildsPrompts(t *testing.T) {
	stub := &stubCompleter{reply: `[{"text": "hi", "type": "chat"}]`}
	n := NewNarrator(stub, 0)

	options, err := n.GenerateOptions(testProfile(), "Negotiator", "CivilSociety",
		[]engine.HistoryEntry{{Actor: "Vale", Text: "signed a memo"}},
		[]engine.ConversationEntry{{Speaker: "Negotiator", Text: "hello"}},
		true,
	)
	require.NoError(t, err)
	require.Len(t, options, 1)

	assert.Contains(t, stub.lastSystem, "Helena Vale (Governments faction)")
	assert.Contains(t, stub.lastSystem, "Faction context here.")
	assert.Contains(t, stub.lastSystem, "1. Initial state: a")
	assert.Contains(t, stub.lastUser, "signed a memo")
	assert.Contains(t, stub.lastUser, "MUST now propose a concrete action")
}

func TestGenerateOptionsPropagatesClientError(t *testing.T) {
	stub := &stubCompleter{err: fmt.Errorf("boom")}
	n := NewNarrator(stub, 0)

	_, err := n.GenerateOptions(testProfile(), "Negotiator", "CivilSociety", nil, nil, false)
	assert.Error(t, err)
}

func TestGenerateOptionsRejectsUnparseableReply(t *testing.T) {
	stub := &stubCompleter{reply: "I refuse to answer in JSON."}
	n := NewNarrator(stub, 0)

	_, err := n.GenerateOptions(testProfile(), "Negotiator", "CivilSociety", nil, nil, false)
	assert.Error(t, err)
}

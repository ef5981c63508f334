// Package actor provides the YAML-backed negotiation partner: persona,
// faction triplets, attribute scores and the prompt text blocks built from
// them.
package actor

import (
	"fmt"
	"strings"

	"github.com/mkaroly/parley/internal/engine"
)

// Attributes are the skill axes an action can draw on.
var Attributes = []string{"leadership", "technology", "policy", "network"}

// severityWeights maps a gap severity to its progress weight. Unknown
// severities weigh 1.
var severityWeights = map[string]int{
	"Critical": 4,
	"Large":    3,
	"Moderate": 2,
	"Small":    1,
}

// WeightForSeverity returns the progress weight of a gap severity.
func WeightForSeverity(severity string) int {
	if w, ok := severityWeights[severity]; ok {
		return w
	}
	return 1
}

// Persona is the character sheet portion of a profile.
type Persona struct {
	Faction     string
	Background  string
	Perks       string
	Weaknesses  string
	Motivations string
	Attributes  map[string]int
}

// Profile is a concrete engine.Actor assembled from scenario data.
type Profile struct {
	name     string
	context  string
	persona  Persona
	triplets []engine.Triplet
	weights  []int
	scores   map[string]int
}

// NewProfile builds a profile from a faction spec and a persona. Attribute
// scores clamp to [0,10]; missing attributes score 0. Triplet weights derive
// from gap severities.
func NewProfile(name, markdownContext string, triplets []engine.Triplet, persona Persona) *Profile {
	p := &Profile{
		name:     name,
		context:  markdownContext,
		persona:  persona,
		triplets: triplets,
		weights:  make([]int, 0, len(triplets)),
		scores:   make(map[string]int, len(Attributes)),
	}
	for _, t := range triplets {
		p.weights = append(p.weights, WeightForSeverity(t.Severity))
	}
	for _, attr := range Attributes {
		v := persona.Attributes[attr]
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		p.scores[attr] = v
	}
	return p
}

func (p *Profile) Name() string    { return p.name }
func (p *Profile) Faction() string { return p.persona.Faction }
func (p *Profile) Context() string { return p.context }

// ProgressKey identifies the profile's row in the progress ledger: the
// faction when set, otherwise the character name.
func (p *Profile) ProgressKey() string {
	if p.persona.Faction != "" {
		return p.persona.Faction
	}
	return p.name
}

// ProgressLabel is the human-readable name of the progress row.
func (p *Profile) ProgressLabel() string {
	if p.persona.Faction != "" && p.persona.Faction != p.name {
		return p.persona.Faction + " faction"
	}
	return p.ProgressKey()
}

// DisplayName is the speaker label used in conversations and history.
func (p *Profile) DisplayName() string {
	if p.persona.Faction != "" && p.persona.Faction != p.name {
		return fmt.Sprintf("%s (%s faction)", p.name, p.persona.Faction)
	}
	return p.name
}

func (p *Profile) Triplets() []engine.Triplet { return p.triplets }
func (p *Profile) Weights() []int             { return p.weights }

// AttributeScore returns the clamped score for attribute, 0 when unknown.
func (p *Profile) AttributeScore(attribute string) int {
	return p.scores[strings.ToLower(strings.TrimSpace(attribute))]
}

// PersonaText renders the character sheet block used in prompts. Empty
// fields are omitted.
func (p *Profile) PersonaText() string {
	lines := []string{"### Character Profile"}
	if p.persona.Faction != "" {
		lines = append(lines, "Faction: "+p.persona.Faction)
	}
	if p.persona.Background != "" {
		lines = append(lines, "Background: "+p.persona.Background)
	}
	if p.persona.Perks != "" {
		lines = append(lines, "Perks: "+p.persona.Perks)
	}
	if p.persona.Weaknesses != "" {
		lines = append(lines, "Weaknesses: "+p.persona.Weaknesses)
	}
	if p.persona.Motivations != "" {
		lines = append(lines, "Motivations: "+p.persona.Motivations)
	}
	return strings.Join(lines, "\n")
}

// TripletText renders the numbered triplet list used in prompts.
func (p *Profile) TripletText() string {
	var b strings.Builder
	for i, t := range p.triplets {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. Initial state: %s\n   End state: %s\n   Gap: %s", i+1, t.Initial, t.End, t.Gap)
		if t.Severity != "" {
			fmt.Fprintf(&b, " (size: %s)", t.Severity)
		}
	}
	return b.String()
}

// HistoryText renders the performed-action history, or "None" when empty.
func HistoryText(history []engine.HistoryEntry) string {
	if len(history) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, h.Actor+": "+h.Text)
	}
	return strings.Join(lines, "\n")
}

// ConversationText renders an exchange window, or "None" when empty.
func ConversationText(entries []engine.ConversationEntry) string {
	if len(entries) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Speaker+": "+e.Text)
	}
	return strings.Join(lines, "\n")
}

package player

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// Completer is the model call the strategist needs.
type Completer interface {
	Complete(system, userPrompt string, maxTokens int) (string, error)
	Enabled() bool
}

// StrategistPlayer consults the model for every decision, steered by a
// victory guide. Every decision has a deterministic fallback so a model
// outage never stalls a game: first actor, first option, no reroll.
type StrategistPlayer struct {
	client Completer
	guide  string
}

// NewStrategistPlayer creates a strategist steered by guide.
func NewStrategistPlayer(client Completer, guide string) *StrategistPlayer {
	return &StrategistPlayer{client: client, guide: guide}
}

func (g *StrategistPlayer) SelectActor(profiles []*actor.Profile, s *engine.Session) *actor.Profile {
	if len(profiles) == 0 {
		return nil
	}
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.DisplayName())
	}
	prompt := fmt.Sprintf(
		"You are playing a negotiation survival game. Choose which character should act next to best achieve victory.\n"+
			"Use the following guide to win: %s\n"+
			"Available characters: %s.\n"+
			"Respond with the name of the character only.",
		g.guide, strings.Join(names, ", "),
	)
	reply, err := g.complete(prompt)
	if err != nil {
		slog.Warn("strategist actor selection failed, using first", "error", err)
		return profiles[0]
	}
	for _, p := range profiles {
		if strings.Contains(reply, p.Name()) {
			return p
		}
	}
	return profiles[0]
}

func (g *StrategistPlayer) SelectOption(p *actor.Profile, options []engine.ActionOption, s *engine.Session) engine.ActionOption {
	var numbered strings.Builder
	for i, o := range options {
		kind := "Dialogue"
		if o.IsAction() {
			kind = "Action"
		}
		fmt.Fprintf(&numbered, "%d. [%s] %s\n", i+1, kind, o.Text)
	}
	prompt := fmt.Sprintf(
		"You are a strategist in a negotiation survival game. Prioritise outcomes that secure a win.\n"+
			"Use the following guide to win: %s\n"+
			"Character: %s\n"+
			"Conversation so far:\n%s\n"+
			"Possible options:\n%s"+
			"Respond with the number of the best option.",
		g.guide, p.DisplayName(), actor.ConversationText(s.ConversationHistory(p)), numbered.String(),
	)
	reply, err := g.complete(prompt)
	if err != nil {
		slog.Warn("strategist option selection failed, using first", "error", err)
		return options[0]
	}
	for _, token := range strings.Fields(reply) {
		n, err := strconv.Atoi(strings.Trim(token, ".,)"))
		if err != nil {
			continue
		}
		if n >= 1 && n <= len(options) {
			return options[n-1]
		}
	}
	return options[0]
}

func (g *StrategistPlayer) ShouldReroll(p *actor.Profile, res engine.Resolution, s *engine.Session) bool {
	if ok, _ := s.RerollAffordability(p, res.Option, res.Targets...); !ok {
		return false
	}
	failure := res.FailureText
	if failure == "" {
		failure = fmt.Sprintf("Failed %s with roll %d", res.Label, res.Roll)
	}
	prompt := fmt.Sprintf(
		"You are assessing whether a failed action is important enough to retry in a negotiation survival game.\n"+
			"Use the victory guide: %s\n"+
			"Character: %s\n"+
			"Action attempted: %s\n"+
			"Outcome: %s\n"+
			"Next retry credibility cost: %d\n"+
			"Reply with YES to retry if the action is critical for winning; otherwise reply NO.",
		g.guide, p.DisplayName(), res.Option.Text, failure, s.NextRerollCost(p, res.Option),
	)
	reply, err := g.complete(prompt)
	if err != nil {
		slog.Warn("strategist reroll query failed, declining", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(reply), "yes")
}

func (g *StrategistPlayer) complete(prompt string) (string, error) {
	if g.client == nil || !g.client.Enabled() {
		return "", fmt.Errorf("strategist not configured")
	}
	return g.client.Complete("", prompt, 300)
}

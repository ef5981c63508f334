// Package player implements automated negotiators: the turn driver that runs
// the exchange loop against a session, and the strategies that pick actors,
// options and reroll decisions.
package player

import (
	"fmt"
	"log/slog"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// OptionGenerator produces an actor's next responses from the game state.
// Satisfied by llm.Narrator.
type OptionGenerator interface {
	GenerateOptions(p *actor.Profile, playerLabel, playerFaction string,
		history []engine.HistoryEntry, conversation []engine.ConversationEntry,
		forceAction bool) ([]engine.ActionOption, error)
}

// ScoreAssessor scores every faction triplet after an action lands.
// Satisfied by llm.Assessor and llm.StaticAssessor.
type ScoreAssessor interface {
	Assess(profiles []*actor.Profile, objective string,
		history []engine.HistoryEntry, parallel bool) (map[string][]int, error)
}

// Player decides who acts, which option to take, and whether a failed action
// is worth rerolling.
type Player interface {
	SelectActor(profiles []*actor.Profile, s *engine.Session) *actor.Profile
	SelectOption(p *actor.Profile, options []engine.ActionOption, s *engine.Session) engine.ActionOption
	ShouldReroll(p *actor.Profile, res engine.Resolution, s *engine.Session) bool
}

// Driver runs full turns for a player against one session.
type Driver struct {
	session      *engine.Session
	profiles     []*actor.Profile
	generator    OptionGenerator
	assessor     ScoreAssessor
	maxExchanges int
}

// NewDriver wires a turn driver. maxExchanges bounds the dialogue loop per
// actor before the driver moves on; values below 1 use the session's
// force-action limit or 8.
func NewDriver(session *engine.Session, profiles []*actor.Profile, generator OptionGenerator, assessor ScoreAssessor, maxExchanges int) *Driver {
	if maxExchanges < 1 {
		maxExchanges = session.Config().ForceActionAfter
		if maxExchanges < 1 {
			maxExchanges = 8
		}
	}
	return &Driver{
		session:      session,
		profiles:     profiles,
		generator:    generator,
		assessor:     assessor,
		maxExchanges: maxExchanges,
	}
}

// TakeTurn runs one full turn: pick an actor, exchange until an action is
// chosen, resolve it (negotiating rerolls on failure), then apply the
// assessment. Returns the resolution of the performed action; performed is
// false when every candidate actor ran out of exchanges.
func (d *Driver) TakeTurn(pl Player) (res engine.Resolution, performed bool, err error) {
	if len(d.profiles) == 0 {
		return engine.Resolution{}, false, fmt.Errorf("no actors to play against")
	}

	tried := make(map[string]bool, len(d.profiles))
	for attempt := 0; attempt < len(d.profiles) && !performed; attempt++ {
		p := pl.SelectActor(d.profiles, d.session)
		if p == nil || tried[p.Name()] {
			p = d.nextUntried(tried)
			if p == nil {
				break
			}
		}
		tried[p.Name()] = true
		slog.Info("turn actor selected", "actor", p.Name())

		res, performed, err = d.converse(pl, p)
		if err != nil {
			return engine.Resolution{}, false, err
		}
	}

	if !performed {
		slog.Info("no action performed this turn")
		return engine.Resolution{}, false, nil
	}

	scores, err := d.assessor.Assess(d.profiles, d.session.Objective(), d.session.History(), true)
	if err != nil {
		slog.Warn("assessment unavailable, progress unchanged", "error", err)
		return res, true, nil
	}
	d.session.ApplyScores(scores)
	slog.Info("assessment applied", "final_weighted_score", d.session.FinalWeightedScore())
	return res, true, nil
}

// converse runs the exchange loop with one actor until an action resolves or
// the exchange budget runs out.
func (d *Driver) converse(pl Player, p *actor.Profile) (engine.Resolution, bool, error) {
	cfg := d.session.Config()
	for exchange := 0; exchange < d.maxExchanges; exchange++ {
		generated, err := d.generator.GenerateOptions(
			p, cfg.PlayerLabel, cfg.PlayerFaction,
			d.session.History(), d.session.ConversationHistory(p),
			d.session.ShouldForceAction(p),
		)
		if err != nil {
			slog.Warn("option generation failed, abandoning actor",
				"actor", p.Name(), "error", err)
			return engine.Resolution{}, false, nil
		}
		d.session.LogResponses(p, generated)

		options := dedupe(append(d.session.AvailableActions(p), dialogueOnly(generated)...))
		if len(options) == 0 {
			return engine.Resolution{}, false, nil
		}

		selection := pl.SelectOption(p, options, d.session)
		if !contains(options, selection) {
			slog.Warn("selected option not offered, defaulting to first",
				"actor", p.Name())
			selection = options[0]
		}
		d.session.LogPlayerResponse(p, selection)

		if !selection.IsAction() {
			continue
		}

		res, err := d.session.RecordAction(p, selection)
		if err != nil {
			return engine.Resolution{}, false, fmt.Errorf("record action: %w", err)
		}
		for !res.Success {
			if !pl.ShouldReroll(p, res, d.session) {
				break
			}
			res, err = d.session.RerollAction(p, selection)
			if err != nil {
				return engine.Resolution{}, false, fmt.Errorf("reroll action: %w", err)
			}
		}
		return res, true, nil
	}
	return engine.Resolution{}, false, nil
}

func (d *Driver) nextUntried(tried map[string]bool) *actor.Profile {
	for _, p := range d.profiles {
		if !tried[p.Name()] {
			return p
		}
	}
	return nil
}

func dialogueOnly(options []engine.ActionOption) []engine.ActionOption {
	var out []engine.ActionOption
	for _, o := range options {
		if !o.IsAction() {
			out = append(out, o)
		}
	}
	return out
}

func dedupe(options []engine.ActionOption) []engine.ActionOption {
	seen := make(map[string]bool, len(options))
	out := make([]engine.ActionOption, 0, len(options))
	for _, o := range options {
		if seen[o.Text] {
			continue
		}
		seen[o.Text] = true
		out = append(out, o)
	}
	return out
}

func contains(options []engine.ActionOption, candidate engine.ActionOption) bool {
	for _, o := range options {
		if o == candidate {
			return true
		}
	}
	return false
}

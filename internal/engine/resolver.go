// Dice resolution for chosen actions.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkaroly/parley/internal/entropy"
)

// ErrNilActor is returned when a resolution is requested without an actor.
// This is a programmer error, not a recoverable game state.
var ErrNilActor = errors.New("engine: resolution requires an actor")

// ErrNoFailedAttempt is returned when a reroll is requested but the actor
// has no failed resolution pending in the current turn.
var ErrNoFailedAttempt = errors.New("engine: no failed attempt to reroll")

// Resolver turns a chosen option into a dice outcome. The random source is
// injected so resolution is deterministic and replayable under test.
type Resolver struct {
	rng       entropy.Source
	threshold int
	rollMin   int
	rollMax   int
}

// NewResolver creates a resolver drawing rolls from rng in [rollMin, rollMax]
// and succeeding when roll + effective score reaches threshold.
func NewResolver(rng entropy.Source, threshold, rollMin, rollMax int) *Resolver {
	if rollMax < rollMin {
		rollMax = rollMin
	}
	return &Resolver{rng: rng, threshold: threshold, rollMin: rollMin, rollMax: rollMax}
}

// Threshold returns the configured success threshold.
func (r *Resolver) Threshold() int {
	return r.threshold
}

// Resolve performs one skill check for actor attempting option. The partner
// score is the player's contribution to the check; targets is the already
// resolved target faction set. The returned Resolution is complete except
// for the credibility cost/gain fields, which the session fills from policy.
func (r *Resolver) Resolve(actor Actor, option ActionOption, partnerScore int, targets []string) (Resolution, error) {
	if actor == nil {
		return Resolution{}, ErrNilActor
	}

	actorScore := actor.AttributeScore(option.RelatedAttribute)
	effective := EffectiveScore(actorScore, partnerScore)
	roll := r.rng.Next(r.rollMin, r.rollMax)
	total := roll + effective
	success := total >= r.threshold

	res := Resolution{
		Option:         option,
		Actor:          actor.DisplayName(),
		Success:        success,
		Roll:           roll,
		ActorScore:     actorScore,
		PartnerScore:   partnerScore,
		EffectiveScore: effective,
		Targets:        append([]string(nil), targets...),
	}
	if !success {
		res.FailureText = fmt.Sprintf(
			"%s failed to carry out the attempt: rolled %d + %d = %d, needed %d.",
			actor.DisplayName(), roll, effective, total, r.threshold)
	}

	slog.Info("action resolved",
		"actor", actor.Name(),
		"attribute", option.RelatedAttribute,
		"roll", roll,
		"effective_score", effective,
		"threshold", r.threshold,
		"success", success,
	)
	return res, nil
}

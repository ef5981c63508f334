package player

import (
	"log/slog"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
)

// RandomPlayer picks actors and options uniformly and flips a coin on
// rerolls.
type RandomPlayer struct {
	rng entropy.Source
}

// NewRandomPlayer creates a random player over rng.
func NewRandomPlayer(rng entropy.Source) *RandomPlayer {
	return &RandomPlayer{rng: rng}
}

func (r *RandomPlayer) SelectActor(profiles []*actor.Profile, s *engine.Session) *actor.Profile {
	if len(profiles) == 0 {
		return nil
	}
	p := profiles[r.rng.Next(0, len(profiles)-1)]
	slog.Debug("random player chose actor", "actor", p.Name())
	return p
}

func (r *RandomPlayer) SelectOption(p *actor.Profile, options []engine.ActionOption, s *engine.Session) engine.ActionOption {
	return options[r.rng.Next(0, len(options)-1)]
}

func (r *RandomPlayer) ShouldReroll(p *actor.Profile, res engine.Resolution, s *engine.Session) bool {
	if ok, _ := s.RerollAffordability(p, res.Option, res.Targets...); !ok {
		return false
	}
	return r.rng.Next(0, 1) == 1
}

// ActionFirstPlayer behaves like RandomPlayer but always takes the first
// offered action and always rerolls while it can pay.
type ActionFirstPlayer struct {
	RandomPlayer
}

// NewActionFirstPlayer creates an action-first player over rng.
func NewActionFirstPlayer(rng entropy.Source) *ActionFirstPlayer {
	return &ActionFirstPlayer{RandomPlayer{rng: rng}}
}

func (a *ActionFirstPlayer) SelectOption(p *actor.Profile, options []engine.ActionOption, s *engine.Session) engine.ActionOption {
	for _, o := range options {
		if o.IsAction() {
			return o
		}
	}
	return a.RandomPlayer.SelectOption(p, options, s)
}

func (a *ActionFirstPlayer) ShouldReroll(p *actor.Profile, res engine.Resolution, s *engine.Session) bool {
	ok, shortfalls := s.RerollAffordability(p, res.Option, res.Targets...)
	if !ok {
		slog.Info("reroll unaffordable", "actor", p.Name(), "shortfalls", len(shortfalls))
		return false
	}
	return true
}

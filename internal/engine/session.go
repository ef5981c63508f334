// Session orchestration: one game instance owning trust, progress, caches
// and the turn history.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/mkaroly/parley/internal/entropy"
)

// Config carries the gameplay parameters of a session. Loaded from YAML by
// the config package and passed in; the engine itself does no file I/O.
type Config struct {
	// PlayerFaction is the faction the human (or automated) negotiator
	// speaks for. All credibility costs and rewards land on its row.
	PlayerFaction string

	// PlayerLabel is the speaker name used for player utterances.
	PlayerLabel string

	// Objective is the scenario's victory script, passed through to the
	// external scorer.
	Objective string

	// WinThreshold is the final weighted score needed to win.
	WinThreshold int

	// MaxRounds bounds the number of performed actions per game.
	MaxRounds int

	// RollThreshold is the skill check target: success when
	// roll + effective score >= RollThreshold.
	RollThreshold int

	// RollMin and RollMax bound the die.
	RollMin, RollMax int

	// ForceActionAfter is the conversation length beyond which an actor
	// should be pushed to propose an action instead of more dialogue.
	ForceActionAfter int

	// ActionTimeCostYears advances the in-game clock per performed action.
	ActionTimeCostYears float64
}

// DefaultConfig returns the standard game parameters.
func DefaultConfig() Config {
	return Config{
		PlayerFaction:       "CivilSociety",
		PlayerLabel:         "Negotiator",
		WinThreshold:        71,
		MaxRounds:           10,
		RollThreshold:       10,
		RollMin:             1,
		RollMax:             20,
		ForceActionAfter:    8,
		ActionTimeCostYears: 0.5,
	}
}

// rerollState tracks the failed attempt a reroll may retry. Reset whenever a
// new action resolves for the actor.
type rerollState struct {
	last  Resolution
	count int
}

// Session is one game instance. It owns a Trust matrix, a progress Ledger,
// per-actor conversation windows and pending-action caches, and the ordered
// history of resolutions. Mutating calls must be serialized by the caller;
// one session is owned by one writer at a time.
type Session struct {
	cfg      Config
	actors   []Actor
	player   Actor // optional; contributes the partner score
	resolver *Resolver

	credibility *Trust
	progress    *Ledger

	history     []HistoryEntry
	resolutions []Resolution

	conversations  map[string][]ConversationEntry
	pendingActions map[string][]ActionOption
	rerolls        map[string]*rerollState

	actionCount int
}

// NewSession creates a session over the given actors. The seed matrix may be
// nil; rng drives all dice. Every actor's faction and progress entry is
// registered up front, and anything else materializes lazily.
func NewSession(cfg Config, actors []Actor, seed map[string]map[string]int, rng entropy.Source) *Session {
	s := &Session{
		cfg:            cfg,
		actors:         actors,
		resolver:       NewResolver(rng, cfg.RollThreshold, cfg.RollMin, cfg.RollMax),
		credibility:    NewTrust(seed),
		progress:       NewLedger(),
		conversations:  make(map[string][]ConversationEntry),
		pendingActions: make(map[string][]ActionOption),
		rerolls:        make(map[string]*rerollState),
	}
	s.credibility.EnsureFaction(cfg.PlayerFaction)
	for _, a := range actors {
		s.progress.Register(a.ProgressKey(), a.Weights())
		s.credibility.EnsureFaction(a.Faction())
	}
	return s
}

// SetPlayer attaches the player-side actor whose attribute scores assist
// skill checks. Optional; without it the partner contribution is zero.
func (s *Session) SetPlayer(player Actor) {
	s.player = player
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Actors returns the negotiating actors.
func (s *Session) Actors() []Actor {
	return s.actors
}

// PlayerFaction returns the faction all policy adjustments originate from.
func (s *Session) PlayerFaction() string {
	return s.cfg.PlayerFaction
}

// Objective returns the scenario victory script.
func (s *Session) Objective() string {
	return s.cfg.Objective
}

// Credibility exposes the trust matrix.
func (s *Session) Credibility() *Trust {
	return s.credibility
}

// Progress exposes the progress ledger.
func (s *Session) Progress() *Ledger {
	return s.progress
}

// History returns a copy of the performed-action history.
func (s *Session) History() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Resolutions returns a copy of every resolution produced so far, rerolls
// included, in order.
func (s *Session) Resolutions() []Resolution {
	out := make([]Resolution, len(s.resolutions))
	copy(out, s.resolutions)
	return out
}

// LastResolution returns the most recent resolution, or false when none.
func (s *Session) LastResolution() (Resolution, bool) {
	if len(s.resolutions) == 0 {
		return Resolution{}, false
	}
	return s.resolutions[len(s.resolutions)-1], true
}

// Rounds returns the number of actions performed.
func (s *Session) Rounds() int {
	return len(s.history)
}

// ElapsedYears returns how far the in-game clock has advanced: each
// performed action costs ActionTimeCostYears.
func (s *Session) ElapsedYears() float64 {
	return float64(len(s.history)) * s.cfg.ActionTimeCostYears
}

// Won reports whether the aggregate weighted score has reached the win
// threshold.
func (s *Session) Won() bool {
	return s.progress.FinalWeightedScore() >= s.cfg.WinThreshold
}

// Finished reports whether the game is over: either won or out of rounds.
func (s *Session) Finished() bool {
	return s.Won() || len(s.history) >= s.cfg.MaxRounds
}

// WeightedScore returns the faction's weighted progress.
func (s *Session) WeightedScore(faction string) int {
	return s.progress.WeightedScore(faction)
}

// FinalWeightedScore returns the aggregate weighted score used for win/loss
// checks.
func (s *Session) FinalWeightedScore() int {
	return s.progress.FinalWeightedScore()
}

// ApplyScores forwards an assessment result to the ledger.
func (s *Session) ApplyScores(update map[string][]int) {
	s.progress.ApplyScores(update)
}

// PartnerCredibility returns how much the actor's faction currently trusts
// the player.
func (s *Session) PartnerCredibility(actor Actor) int {
	if actor == nil || actor.Faction() == "" {
		return BaseCredibility
	}
	return s.credibility.Value(actor.Faction(), s.cfg.PlayerFaction)
}

// resolveTargets applies the target default: explicit non-empty targets win,
// otherwise the actor's own faction.
func (s *Session) resolveTargets(actor Actor, targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 && actor.Faction() != "" {
		out = append(out, actor.Faction())
	}
	return out
}

func (s *Session) partnerScore(option ActionOption) int {
	if s.player == nil {
		return 0
	}
	return s.player.AttributeScore(option.RelatedAttribute)
}

// RecordAction resolves option for actor and applies the credibility policy:
// +CredibilityReward on the player → target edge per target for uncontested
// options, -CredibilityPenalty for contested ones, independent of the dice
// outcome. The resolution is appended to the history; a failure arms the
// reroll branch for this actor.
func (s *Session) RecordAction(actor Actor, option ActionOption, targets ...string) (Resolution, error) {
	if actor == nil {
		return Resolution{}, ErrNilActor
	}
	resolved := s.resolveTargets(actor, targets)
	res, err := s.resolver.Resolve(actor, option, s.partnerScore(option), resolved)
	if err != nil {
		return Resolution{}, err
	}

	delta := CredibilityDelta(option)
	if delta < 0 {
		res.CredibilityCost = -delta
	} else {
		res.CredibilityGain = delta
	}
	for _, target := range resolved {
		s.credibility.Adjust(s.cfg.PlayerFaction, target, delta)
	}

	s.actionCount++
	res.Label = fmt.Sprintf("Action %d", s.actionCount)
	s.history = append(s.history, HistoryEntry{Actor: actor.DisplayName(), Text: option.Text})
	s.resolutions = append(s.resolutions, res)
	s.armReroll(actor, res)

	slog.Info("action recorded",
		"label", res.Label,
		"actor", actor.Name(),
		"success", res.Success,
		"targets", resolved,
		"credibility_cost", res.CredibilityCost,
		"credibility_gain", res.CredibilityGain,
	)
	return res, nil
}

// AttemptAction is the dice-only path: it resolves option for actor without
// touching credibility or the performed-action history. A failure still arms
// the reroll branch.
func (s *Session) AttemptAction(actor Actor, option ActionOption) (Resolution, error) {
	if actor == nil {
		return Resolution{}, ErrNilActor
	}
	res, err := s.resolver.Resolve(actor, option, s.partnerScore(option), s.resolveTargets(actor, nil))
	if err != nil {
		return Resolution{}, err
	}
	s.armReroll(actor, res)
	return res, nil
}

// armReroll installs a fresh failed resolution as the actor's reroll branch.
// The per-turn counter restarts here; only RerollAction advances it.
func (s *Session) armReroll(actor Actor, res Resolution) {
	if res.Success {
		delete(s.rerolls, actor.Name())
		return
	}
	s.rerolls[actor.Name()] = &rerollState{last: res}
}

// NextRerollCost returns the credibility price the next reroll for actor
// would carry. Pure with respect to session state.
func (s *Session) NextRerollCost(actor Actor, option ActionOption) int {
	count := 0
	if state, ok := s.rerolls[actor.Name()]; ok {
		count = state.count
	}
	return NextRerollCost(count)
}

// RerollAffordability checks whether every candidate target faction can
// cover the next reroll cost from the player's edge toward it. Without
// explicit targets the armed failed resolution's targets are checked, the
// same set RerollAction would charge. Pure query: the trust matrix is not
// mutated, even for unknown factions.
func (s *Session) RerollAffordability(actor Actor, option ActionOption, targets ...string) (bool, []Shortfall) {
	cost := s.NextRerollCost(actor, option)
	if len(targets) == 0 {
		if state, ok := s.rerolls[actor.Name()]; ok && len(state.last.Targets) > 0 {
			targets = state.last.Targets
		}
	}
	var shortfalls []Shortfall
	for _, target := range s.resolveTargets(actor, targets) {
		available := s.credibility.peek(s.cfg.PlayerFaction, target)
		if available < cost {
			shortfalls = append(shortfalls, Shortfall{Target: target, Available: available, Needed: cost})
		}
	}
	return len(shortfalls) == 0, shortfalls
}

// RerollAction retries the actor's last failed attempt, consuming the
// current reroll cost from the player's edge toward every target of the
// failed resolution. Returns ErrNoFailedAttempt when nothing is pending.
func (s *Session) RerollAction(actor Actor, option ActionOption) (Resolution, error) {
	if actor == nil {
		return Resolution{}, ErrNilActor
	}
	state, ok := s.rerolls[actor.Name()]
	if !ok {
		return Resolution{}, ErrNoFailedAttempt
	}

	cost := NextRerollCost(state.count)
	targets := state.last.Targets
	if len(targets) == 0 {
		targets = s.resolveTargets(actor, nil)
	}
	for _, target := range targets {
		s.credibility.Adjust(s.cfg.PlayerFaction, target, -cost)
	}

	res, err := s.resolver.Resolve(actor, option, s.partnerScore(option), targets)
	if err != nil {
		return Resolution{}, err
	}
	state.count++
	res.Rerolls = state.count
	res.CredibilityCost = cost
	res.Label = fmt.Sprintf("Action %d (reroll %d)", s.actionCount, state.count)
	s.resolutions = append(s.resolutions, res)
	if res.Success {
		delete(s.rerolls, actor.Name())
	} else {
		state.last = res
	}

	slog.Info("action rerolled",
		"actor", actor.Name(),
		"attempt", state.count,
		"cost", cost,
		"success", res.Success,
	)
	return res, nil
}

// ConversationHistory returns a copy of the current exchange window with
// actor.
func (s *Session) ConversationHistory(actor Actor) []ConversationEntry {
	entries := s.conversations[actor.Name()]
	out := make([]ConversationEntry, len(entries))
	copy(out, entries)
	return out
}

// LogResponses files a batch of freshly generated options for actor. All
// dialogue options are appended verbatim to the conversation; at most one
// action option (the first) is retained as the actor's currently
// selectable action and logged with a generated label. Later action options
// in the same batch are discarded so a single NPC turn never offers two
// mutually exclusive hard moves. Returns the entries appended.
func (s *Session) LogResponses(actor Actor, options []ActionOption) []ConversationEntry {
	s.pendingActions[actor.Name()] = nil

	var appended []ConversationEntry
	actionRetained := false
	for _, option := range options {
		if option.IsAction() {
			if actionRetained {
				slog.Debug("discarding extra action option",
					"actor", actor.Name(), "text", option.Text)
				continue
			}
			actionRetained = true
			s.pendingActions[actor.Name()] = []ActionOption{option}
			entry := ConversationEntry{
				Speaker: actor.DisplayName(),
				Text:    fmt.Sprintf("Action %d: %s", s.actionCount+1, option.Text),
				Type:    OptionAction,
			}
			appended = append(appended, entry)
			continue
		}
		appended = append(appended, ConversationEntry{
			Speaker: actor.DisplayName(),
			Text:    option.Text,
			Type:    OptionDialogue,
		})
	}
	s.conversations[actor.Name()] = append(s.conversations[actor.Name()], appended...)
	return appended
}

// LogPlayerResponse appends the player's chosen option to the actor's
// conversation window.
func (s *Session) LogPlayerResponse(actor Actor, option ActionOption) {
	s.conversations[actor.Name()] = append(s.conversations[actor.Name()], ConversationEntry{
		Speaker: s.cfg.PlayerLabel,
		Text:    option.Text,
		Type:    option.Type,
	})
}

// AvailableActions returns the actor's currently retained action options.
// Replaced by the next LogResponses call for the actor.
func (s *Session) AvailableActions(actor Actor) []ActionOption {
	pending := s.pendingActions[actor.Name()]
	out := make([]ActionOption, len(pending))
	copy(out, pending)
	return out
}

// ShouldForceAction reports whether the exchange window with actor has grown
// past the configured limit, signalling the oracle to stop chatting and
// propose an action.
func (s *Session) ShouldForceAction(actor Actor) bool {
	if s.cfg.ForceActionAfter <= 0 {
		return false
	}
	return len(s.conversations[actor.Name()]) >= s.cfg.ForceActionAfter
}

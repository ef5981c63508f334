// Command parley is the interactive terminal game: approach a faction
// representative, talk, commit to actions and try to reach the objective
// before the rounds run out.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/config"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
	"github.com/mkaroly/parley/internal/llm"
	"github.com/mkaroly/parley/internal/scenario"
)

func main() {
	configPath := flag.String("config", "game_config.yaml", "game configuration file")
	scenarioDir := flag.String("scenarios", "scenarios", "scenario directory")
	scenarioName := flag.String("scenario", "", "scenario name (default from config)")
	seed := flag.Int64("seed", 0, "dice seed, 0 = random")
	model := flag.String("model", "", "model override")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	game := config.LoadGame(*configPath)
	name := *scenarioName
	if name == "" {
		name = game.Scenario
	}
	path, err := scenario.Find(*scenarioDir, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenario %q not found in %s: %v\n", name, *scenarioDir, err)
		os.Exit(1)
	}
	scn, err := scenario.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load scenario: %v\n", err)
		os.Exit(1)
	}

	client := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY")).WithModel(*model)
	if !client.Enabled() {
		fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY is required for the interactive game")
		os.Exit(1)
	}
	narrator := llm.NewNarrator(client, game.PromptCharacterLimit)
	assessor := llm.NewAssessor(client)

	cfg := engine.DefaultConfig()
	cfg.Objective = scn.Objective
	if scn.PlayerFaction != "" {
		cfg.PlayerFaction = scn.PlayerFaction
	}
	cfg.WinThreshold = game.WinThreshold
	cfg.MaxRounds = game.MaxRounds
	cfg.RollThreshold = game.RollSuccessThreshold
	cfg.ForceActionAfter = game.ForceActionAfter
	cfg.ActionTimeCostYears = game.ActionTimeCostYears

	var rng entropy.Source
	if *seed != 0 {
		rng = entropy.NewSeeded(*seed)
	} else {
		s, err := entropy.NewSeed()
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed dice: %v\n", err)
			os.Exit(1)
		}
		rng = entropy.NewSeeded(s)
	}

	session := engine.NewSession(cfg, scn.Actors(), scn.Credibility, rng)
	in := bufio.NewScanner(os.Stdin)

	fmt.Printf("=== %s ===\n", scn.Name)
	fmt.Printf("You speak for %s.\n\nObjective:\n%s\n", cfg.PlayerFaction, scn.Objective)

	for !session.Finished() {
		fmt.Printf("\n--- Round %d of %d | score %d (need %d) ---\n",
			session.Rounds()+1, cfg.MaxRounds, session.FinalWeightedScore(), cfg.WinThreshold)

		p := chooseActor(in, scn.Profiles, session)
		if p == nil {
			fmt.Println("Walking away from the table.")
			return
		}
		if !converse(in, session, narrator, p) {
			return
		}

		scores, err := assessor.Assess(scn.Profiles, session.Objective(), session.History(), true)
		if err != nil {
			fmt.Printf("(the observers are silent: %v)\n", err)
			continue
		}
		session.ApplyScores(scores)
		fmt.Printf("Weighted score is now %d.\n", session.FinalWeightedScore())
	}

	fmt.Println()
	if session.Won() {
		fmt.Printf("Victory. Final score %d after %d rounds.\n",
			session.FinalWeightedScore(), session.Rounds())
	} else {
		fmt.Printf("The talks collapse. Final score %d after %d rounds.\n",
			session.FinalWeightedScore(), session.Rounds())
	}
}

// chooseActor prompts for a negotiation partner. Returns nil when the player
// quits.
func chooseActor(in *bufio.Scanner, profiles []*actor.Profile, s *engine.Session) *actor.Profile {
	fmt.Println("\nWho do you approach?")
	for i, p := range profiles {
		fmt.Printf("  %d. %s (trusts you at %d)\n", i+1, p.DisplayName(), s.PartnerCredibility(p))
	}
	for {
		line, ok := prompt(in, "> ")
		if !ok || strings.EqualFold(line, "q") {
			return nil
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(profiles) {
			return profiles[n-1]
		}
		for _, p := range profiles {
			if strings.EqualFold(p.Name(), line) {
				return p
			}
		}
		fmt.Println("Pick a number from the list, or q to quit.")
	}
}

// converse runs the exchange with one actor until an action resolves, the
// player backs out, or the actor runs out of patience. Returns false when the
// player quits the game.
func converse(in *bufio.Scanner, s *engine.Session, narrator *llm.Narrator, p *actor.Profile) bool {
	cfg := s.Config()
	for {
		generated, err := narrator.GenerateOptions(
			p, cfg.PlayerLabel, cfg.PlayerFaction,
			s.History(), s.ConversationHistory(p), s.ShouldForceAction(p),
		)
		if err != nil {
			fmt.Printf("%s has nothing to say right now (%v).\n", p.Name(), err)
			return true
		}
		for _, entry := range s.LogResponses(p, generated) {
			fmt.Printf("\n%s: %s\n", entry.Speaker, entry.Text)
		}

		options := s.AvailableActions(p)
		for _, o := range generated {
			if !o.IsAction() {
				options = append(options, o)
			}
		}
		if len(options) == 0 {
			fmt.Printf("%s ends the conversation.\n", p.Name())
			return true
		}

		fmt.Println("\nYour move:")
		for i, o := range options {
			tag := ""
			if o.IsAction() {
				tag = " [action]"
			}
			fmt.Printf("  %d. %s%s\n", i+1, o.Text, tag)
		}
		choice, quit := chooseOption(in, options)
		if quit {
			return false
		}
		if choice == nil {
			return true // back to actor selection
		}

		s.LogPlayerResponse(p, *choice)
		if !choice.IsAction() {
			continue
		}

		res, err := s.RecordAction(p, *choice)
		if err != nil {
			fmt.Printf("that move is off the table: %v\n", err)
			return true
		}
		printResolution(res)
		for !res.Success {
			res, err = negotiateReroll(in, s, p, *choice, res)
			if err != nil {
				fmt.Printf("reroll failed: %v\n", err)
				return true
			}
			if res.Label == "" {
				break // player declined or cannot afford
			}
			printResolution(res)
		}
		return true
	}
}

// chooseOption reads the player's selection. Returns (nil, false) for "back",
// (nil, true) for quit.
func chooseOption(in *bufio.Scanner, options []engine.ActionOption) (*engine.ActionOption, bool) {
	for {
		line, ok := prompt(in, "choice (number, b = back, q = quit) > ")
		if !ok || strings.EqualFold(line, "q") {
			return nil, true
		}
		if strings.EqualFold(line, "b") {
			return nil, false
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
			return &options[n-1], false
		}
		fmt.Println("Pick a number from the list.")
	}
}

// negotiateReroll offers a paid retry of a failed action. The zero Resolution
// signals the player declined or could not pay.
func negotiateReroll(in *bufio.Scanner, s *engine.Session, p *actor.Profile, option engine.ActionOption, failed engine.Resolution) (engine.Resolution, error) {
	cost := s.NextRerollCost(p, option)
	affordable, shortfalls := s.RerollAffordability(p, option)
	if !affordable {
		for _, sf := range shortfalls {
			fmt.Printf("Not enough standing with %s (%d available, %d needed).\n",
				sf.Target, sf.Available, sf.Needed)
		}
		return engine.Resolution{}, nil
	}

	line, ok := prompt(in, fmt.Sprintf("Retry for %d credibility? (y/n) > ", cost))
	if !ok || !strings.HasPrefix(strings.ToLower(line), "y") {
		return engine.Resolution{}, nil
	}
	return s.RerollAction(p, option)
}

func printResolution(res engine.Resolution) {
	outcome := "FAILURE"
	if res.Success {
		outcome = "SUCCESS"
	}
	fmt.Printf("\n[%s] %s: rolled %d + %d effective = %d\n",
		outcome, res.Label, res.Roll, res.EffectiveScore, res.Roll+res.EffectiveScore)
	if res.CredibilityCost > 0 {
		fmt.Printf("Credibility spent: %d toward %s\n", res.CredibilityCost, strings.Join(res.Targets, ", "))
	}
	if res.CredibilityGain > 0 {
		fmt.Printf("Credibility gained: %d with %s\n", res.CredibilityGain, strings.Join(res.Targets, ", "))
	}
	if !res.Success && res.FailureText != "" {
		fmt.Println(res.FailureText)
	}
}

func prompt(in *bufio.Scanner, msg string) (string, bool) {
	fmt.Print(msg)
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

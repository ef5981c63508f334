// Command autoplay runs automated negotiation games and records every run in
// the database for later analysis.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkaroly/parley/internal/config"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
	"github.com/mkaroly/parley/internal/llm"
	"github.com/mkaroly/parley/internal/persistence"
	"github.com/mkaroly/parley/internal/player"
	"github.com/mkaroly/parley/internal/scenario"
)

func main() {
	playerClass := flag.String("player", "random", "player strategy: random, action-first or strategist")
	games := flag.Int("games", 1, "number of games to run")
	seed := flag.Int64("seed", 0, "base seed, 0 = random")
	configPath := flag.String("config", "game_config.yaml", "game configuration file")
	scenarioDir := flag.String("scenarios", "scenarios", "scenario directory")
	scenarioName := flag.String("scenario", "", "scenario name (default from config)")
	dbPath := flag.String("db", "data/autoplay.db", "result database path")
	notes := flag.String("notes", "", "free-form notes stored with each execution")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	game := config.LoadGame(*configPath)
	name := *scenarioName
	if name == "" {
		name = game.Scenario
	}
	path, err := scenario.Find(*scenarioDir, name)
	if err != nil {
		slog.Error("scenario not found", "name", name, "error", err)
		os.Exit(1)
	}
	scn, err := scenario.Load(path)
	if err != nil {
		slog.Error("failed to load scenario", "error", err)
		os.Exit(1)
	}

	os.MkdirAll(filepath.Dir(*dbPath), 0o755)
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	client := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
	if !client.Enabled() {
		slog.Error("ANTHROPIC_API_KEY is required, automated play talks to the model")
		os.Exit(1)
	}
	narrator := llm.NewNarrator(client, game.PromptCharacterLimit)
	assessor := llm.NewAssessor(client)

	baseSeed := *seed
	if baseSeed == 0 {
		baseSeed, err = entropy.NewSeed()
		if err != nil {
			slog.Error("failed to seed dice", "error", err)
			os.Exit(1)
		}
	}

	wins := 0
	for i := 0; i < *games; i++ {
		won, err := runGame(db, scn, game, narrator, assessor, *playerClass, baseSeed+int64(i), *notes)
		if err != nil {
			slog.Error("game aborted", "game", i+1, "error", err)
			continue
		}
		if won {
			wins++
		}
	}

	fmt.Printf("\n%s won %d of %d games (scenario %q, threshold %d)\n",
		*playerClass, wins, *games, scn.Name, game.WinThreshold)
}

func runGame(db *persistence.DB, scn *scenario.Scenario, game config.Game,
	narrator *llm.Narrator, assessor *llm.Assessor,
	playerClass string, seed int64, notes string) (bool, error) {

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

	rng := entropy.NewSeeded(seed)
	session := engine.NewSession(cfg, scn.Actors(), scn.Credibility, rng)
	driver := player.NewDriver(session, scn.Profiles, narrator, assessor, 0)

	pl, err := buildPlayer(playerClass, rng)
	if err != nil {
		return false, err
	}

	rec := persistence.NewRecorder(db, notes)
	rec.OnGameStart(session, playerClass, scn.Name)
	slog.Info("game starting", "execution", rec.ExecutionID(), "player", playerClass, "seed", seed)

	for round := 1; !session.Finished(); round++ {
		rec.BeforeTurn(session, round)
		_, performed, err := driver.TakeTurn(pl)
		if err != nil {
			rec.OnGameError(session, err)
			return false, err
		}
		rec.AfterTurn(session, round)
		if !performed {
			slog.Warn("turn produced no action, stopping", "round", round)
			break
		}
	}

	result := "loss"
	if session.Won() {
		result = "victory"
	}
	rec.OnGameEnd(session, result, session.Won())
	slog.Info("game over",
		"result", result,
		"score", session.FinalWeightedScore(),
		"rounds", session.Rounds(),
	)
	return session.Won(), nil
}

func buildPlayer(class string, rng entropy.Source) (player.Player, error) {
	switch strings.ToLower(class) {
	case "random":
		return player.NewRandomPlayer(rng), nil
	case "action-first", "actionfirst":
		return player.NewActionFirstPlayer(rng), nil
	case "strategist":
		client := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
		return player.NewStrategistPlayer(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown player class %q", class)
	}
}

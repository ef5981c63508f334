// Command parleyd serves one negotiation game over the HTTP API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/mkaroly/parley/internal/api"
	"github.com/mkaroly/parley/internal/config"
	"github.com/mkaroly/parley/internal/llm"
	"github.com/mkaroly/parley/internal/persistence"
	"github.com/mkaroly/parley/internal/scenario"
)

type settings struct {
	Port         int    `env:"PARLEY_PORT" envDefault:"8080"`
	AdminKey     string `env:"PARLEY_ADMIN_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	Model        string `env:"PARLEY_MODEL"`
	LogLevel     string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
	ConfigPath   string `env:"PARLEY_CONFIG" envDefault:"game_config.yaml"`
	ScenarioDir  string `env:"PARLEY_SCENARIO_DIR" envDefault:"scenarios"`
	Scenario     string `env:"PARLEY_SCENARIO"`
	DBPath       string `env:"PARLEY_DB_PATH" envDefault:"data/parley.db"`
	BackupPath   string `env:"PARLEY_BACKUP_PATH" envDefault:"data/backups/parley.db"`
}

func main() {
	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse environment: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	game := config.LoadGame(cfg.ConfigPath)
	backup := config.LoadBackup(cfg.ConfigPath)

	scenarioName := cfg.Scenario
	if scenarioName == "" {
		scenarioName = game.Scenario
	}
	scenarioPath, err := scenario.Find(cfg.ScenarioDir, scenarioName)
	if err != nil {
		slog.Error("scenario not found", "name", scenarioName, "dir", cfg.ScenarioDir, "error", err)
		os.Exit(1)
	}
	scn, err := scenario.Load(scenarioPath)
	if err != nil {
		slog.Error("failed to load scenario", "path", scenarioPath, "error", err)
		os.Exit(1)
	}
	slog.Info("scenario loaded",
		"name", scn.Name,
		"actors", len(scn.Profiles),
		"player_faction", scn.PlayerFaction,
	)

	os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	monitor := persistence.NewMonitor()
	var scheduler *persistence.Scheduler
	if backup.Enabled {
		scheduler = persistence.NewScheduler(db, cfg.BackupPath, monitor,
			persistence.ClosedSessionsThreshold(backup.ClosedSessionsThreshold),
			backup.PollInterval, backup.SessionInactiveAfter)
		scheduler.Start()
	}

	client := llm.NewClient(cfg.AnthropicKey).WithModel(cfg.Model)
	server := &api.Server{
		Scenario: scn,
		Game:     game,
		DB:       db,
		Monitor:  monitor,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	if client.Enabled() {
		server.Generator = llm.NewNarrator(client, game.PromptCharacterLimit)
		server.Assessor = llm.NewAssessor(client)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, option generation and assessment disabled")
	}
	if cfg.AdminKey == "" {
		slog.Warn("PARLEY_ADMIN_KEY not set, /reset endpoint disabled")
	}
	server.Start()

	fmt.Printf("Parley is listening: http://localhost:%d/api/v1/status (scenario %q)\n",
		cfg.Port, scn.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	if scheduler != nil {
		scheduler.Stop()
		if err := persistence.Backup(db, cfg.BackupPath); err != nil {
			slog.Error("final backup failed", "error", err)
		}
	}
	fmt.Println("Server stopped.")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

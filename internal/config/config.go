// Package config loads gameplay and backup parameters from YAML. Malformed
// values degrade to defaults with a warning instead of failing the load; a
// missing file is not an error.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Game carries the gameplay tuning knobs.
type Game struct {
	// Scenario selects the roster file set, lowercased.
	Scenario string

	// WinThreshold is the aggregate weighted score needed to win.
	WinThreshold int

	// MaxRounds bounds the number of performed actions per game.
	MaxRounds int

	// RollSuccessThreshold is the skill check target.
	RollSuccessThreshold int

	// ActionTimeCostYears advances the in-game clock per performed action.
	ActionTimeCostYears float64

	// PromptCharacterLimit truncates history excerpts in prompts.
	PromptCharacterLimit int

	// ForceActionAfter is the exchange length past which an actor is pushed
	// to propose an action.
	ForceActionAfter int
}

// DefaultGame returns the standard gameplay parameters.
func DefaultGame() Game {
	return Game{
		Scenario:             "complete",
		WinThreshold:         71,
		MaxRounds:            10,
		RollSuccessThreshold: 10,
		ActionTimeCostYears:  0.5,
		PromptCharacterLimit: 400,
		ForceActionAfter:     8,
	}
}

// LoadGame reads the gameplay configuration from path. A missing or
// unparseable file yields the defaults; individual malformed values fall back
// per field.
func LoadGame(path string) Game {
	defaults := DefaultGame()

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("game config not readable, using defaults", "path", path, "error", err)
		return defaults
	}

	var payload map[string]any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		slog.Warn("game config unparseable, using defaults", "path", path, "error", err)
		return defaults
	}
	// A top-level "game" section is optional.
	if nested, ok := payload["game"].(map[string]any); ok {
		payload = nested
	}

	scenario := strings.ToLower(strings.TrimSpace(coerceString(payload["scenario"], defaults.Scenario)))
	if scenario == "" {
		scenario = defaults.Scenario
	}

	return Game{
		Scenario:             scenario,
		WinThreshold:         max(0, coerceInt(payload["win_threshold"], defaults.WinThreshold)),
		MaxRounds:            max(1, coerceInt(payload["max_rounds"], defaults.MaxRounds)),
		RollSuccessThreshold: max(1, coerceInt(payload["roll_success_threshold"], defaults.RollSuccessThreshold)),
		ActionTimeCostYears:  max(0, coerceFloat(payload["action_time_cost_years"], defaults.ActionTimeCostYears)),
		PromptCharacterLimit: max(1, coerceInt(payload["format_prompt_character_limit"], defaults.PromptCharacterLimit)),
		ForceActionAfter:     max(0, coerceInt(payload["conversation_force_action_after"], defaults.ForceActionAfter)),
	}
}

// Backup carries the backup scheduler parameters.
type Backup struct {
	Enabled                 bool
	PollInterval            time.Duration
	SessionInactiveAfter    time.Duration
	TriggerType             string
	ClosedSessionsThreshold int
}

// DefaultBackup returns the standard backup scheduler parameters.
func DefaultBackup() Backup {
	return Backup{
		Enabled:                 true,
		PollInterval:            30 * time.Second,
		SessionInactiveAfter:    10 * time.Minute,
		TriggerType:             "closed_sessions_threshold",
		ClosedSessionsThreshold: 5,
	}
}

// LoadBackup reads the backup scheduler configuration from path with the
// same degrade-to-defaults behavior as LoadGame.
func LoadBackup(path string) Backup {
	defaults := DefaultBackup()

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Info("backup config not readable, using defaults", "path", path, "error", err)
		return defaults
	}

	var payload map[string]any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		slog.Warn("backup config unparseable, using defaults", "path", path, "error", err)
		return defaults
	}

	trigger, _ := payload["trigger"].(map[string]any)

	out := Backup{
		Enabled:                 coerceBool(payload["enabled"], defaults.Enabled),
		PollInterval:            secondsToDuration(coerceFloat(payload["poll_interval_seconds"], defaults.PollInterval.Seconds())),
		SessionInactiveAfter:    secondsToDuration(coerceFloat(payload["session_inactive_seconds"], defaults.SessionInactiveAfter.Seconds())),
		TriggerType:             defaults.TriggerType,
		ClosedSessionsThreshold: defaults.ClosedSessionsThreshold,
	}
	if trigger != nil {
		out.TriggerType = coerceString(trigger["type"], defaults.TriggerType)
		out.ClosedSessionsThreshold = coerceInt(trigger["closed_sessions_threshold"], defaults.ClosedSessionsThreshold)
	}
	if out.ClosedSessionsThreshold < 1 {
		slog.Warn("closed sessions threshold below 1, using default",
			"value", out.ClosedSessionsThreshold)
		out.ClosedSessionsThreshold = defaults.ClosedSessionsThreshold
	}
	return out
}

func secondsToDuration(s float64) time.Duration {
	if s < 0 {
		s = 0
	}
	return time.Duration(s * float64(time.Second))
}

func coerceString(v any, fallback string) string {
	switch t := v.(type) {
	case nil:
		return fallback
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func coerceInt(v any, fallback int) int {
	switch t := v.(type) {
	case nil:
		return fallback
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	slog.Warn("invalid integer in configuration, using fallback", "value", v, "fallback", fallback)
	return fallback
}

func coerceFloat(v any, fallback float64) float64 {
	switch t := v.(type) {
	case nil:
		return fallback
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	slog.Warn("invalid float in configuration, using fallback", "value", v, "fallback", fallback)
	return fallback
}

func coerceBool(v any, fallback bool) bool {
	switch t := v.(type) {
	case nil:
		return fallback
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	slog.Warn("invalid boolean in configuration, using fallback", "value", v, "fallback", fallback)
	return fallback
}

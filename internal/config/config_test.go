package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGameMissingFileUsesDefaults(t *testing.T) {
	got := LoadGame(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, DefaultGame(), got)
}

func TestLoadGameUnparseableUsesDefaults(t *testing.T) {
	path := writeTemp(t, "scenario: [unterminated")
	assert.Equal(t, DefaultGame(), LoadGame(path))
}

func TestLoadGameReadsTopLevelKeys(t *testing.T) {
	path := writeTemp(t, `
scenario: Minimal
win_threshold: 60
max_rounds: 4
roll_success_threshold: 12
conversation_force_action_after: 3
`)
	got := LoadGame(path)
	assert.Equal(t, "minimal", got.Scenario)
	assert.Equal(t, 60, got.WinThreshold)
	assert.Equal(t, 4, got.MaxRounds)
	assert.Equal(t, 12, got.RollSuccessThreshold)
	assert.Equal(t, 3, got.ForceActionAfter)
}

func TestLoadGameAcceptsNestedGameSection(t *testing.T) {
	path := writeTemp(t, `
game:
  win_threshold: 90
`)
	got := LoadGame(path)
	assert.Equal(t, 90, got.WinThreshold)
	assert.Equal(t, DefaultGame().MaxRounds, got.MaxRounds)
}

func TestLoadGameCoercesAndFloorsValues(t *testing.T) {
	path := writeTemp(t, `
win_threshold: "not a number"
max_rounds: -3
roll_success_threshold: 0
scenario: "   "
`)
	got := LoadGame(path)
	assert.Equal(t, DefaultGame().WinThreshold, got.WinThreshold)
	assert.Equal(t, 1, got.MaxRounds)
	assert.Equal(t, 1, got.RollSuccessThreshold)
	assert.Equal(t, DefaultGame().Scenario, got.Scenario)
}

func TestLoadBackupReadsTriggerSection(t *testing.T) {
	path := writeTemp(t, `
enabled: false
poll_interval_seconds: 5
session_inactive_seconds: 120
trigger:
  type: closed_sessions_threshold
  closed_sessions_threshold: 2
`)
	got := LoadBackup(path)
	assert.False(t, got.Enabled)
	assert.Equal(t, 5*time.Second, got.PollInterval)
	assert.Equal(t, 2*time.Minute, got.SessionInactiveAfter)
	assert.Equal(t, 2, got.ClosedSessionsThreshold)
}

func TestLoadBackupRejectsZeroThreshold(t *testing.T) {
	path := writeTemp(t, `
trigger:
  closed_sessions_threshold: 0
`)
	got := LoadBackup(path)
	assert.Equal(t, DefaultBackup().ClosedSessionsThreshold, got.ClosedSessionsThreshold)
}

func TestLoadBackupMissingFileUsesDefaults(t *testing.T) {
	got := LoadBackup(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, DefaultBackup(), got)
}

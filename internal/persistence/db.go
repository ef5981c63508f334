// Package persistence provides SQLite-backed recording of game executions:
// every action, assessment and credibility snapshot, plus the final result.
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mkaroly/parley/internal/engine"
)

// DB wraps a SQLite connection for execution recording.
type DB struct {
	conn *sqlx.DB
	path string
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		player_class TEXT NOT NULL,
		scenario TEXT NOT NULL,
		player_faction TEXT NOT NULL,
		win_threshold INTEGER NOT NULL,
		max_rounds INTEGER NOT NULL,
		roll_success_threshold INTEGER NOT NULL,
		force_action_after INTEGER NOT NULL,
		action_time_cost_years REAL NOT NULL DEFAULT 0,
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL REFERENCES executions(id),
		round INTEGER NOT NULL,
		label TEXT NOT NULL,
		actor TEXT NOT NULL,
		text TEXT NOT NULL,
		option_type TEXT NOT NULL,
		related_triplet INTEGER NOT NULL,
		related_attribute TEXT NOT NULL,
		success INTEGER NOT NULL,
		roll INTEGER NOT NULL,
		effective_score INTEGER NOT NULL,
		credibility_cost INTEGER NOT NULL,
		credibility_gain INTEGER NOT NULL,
		rerolls INTEGER NOT NULL,
		targets_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL REFERENCES executions(id),
		action_id INTEGER NOT NULL REFERENCES actions(id),
		progress_json TEXT NOT NULL,
		final_weighted_score INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS credibility (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL REFERENCES executions(id),
		action_id INTEGER NOT NULL REFERENCES actions(id),
		player_faction TEXT NOT NULL,
		snapshot_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		execution_id TEXT PRIMARY KEY REFERENCES executions(id),
		successful INTEGER NOT NULL,
		result TEXT NOT NULL,
		error_info TEXT,
		final_weighted_score INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		ended_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_execution ON actions(execution_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_execution ON assessments(execution_id);
	CREATE INDEX IF NOT EXISTS idx_credibility_execution ON credibility(execution_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Execution is one recorded game run.
type Execution struct {
	ID                   string  `db:"id"`
	StartedAt            string  `db:"started_at"`
	PlayerClass          string  `db:"player_class"`
	Scenario             string  `db:"scenario"`
	PlayerFaction        string  `db:"player_faction"`
	WinThreshold         int     `db:"win_threshold"`
	MaxRounds            int     `db:"max_rounds"`
	RollSuccessThreshold int     `db:"roll_success_threshold"`
	ForceActionAfter     int     `db:"force_action_after"`
	ActionTimeCostYears  float64 `db:"action_time_cost_years"`
	Notes                string  `db:"notes"`
}

// InsertExecution stores execution metadata.
func (db *DB) InsertExecution(e Execution) error {
	_, err := db.conn.NamedExec(`INSERT INTO executions
		(id, started_at, player_class, scenario, player_faction, win_threshold,
		 max_rounds, roll_success_threshold, force_action_after,
		 action_time_cost_years, notes)
		VALUES (:id, :started_at, :player_class, :scenario, :player_faction,
		 :win_threshold, :max_rounds, :roll_success_threshold,
		 :force_action_after, :action_time_cost_years, :notes)`, e)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", e.ID, err)
	}
	return nil
}

// ExecutionFor returns the stored metadata of an execution.
func (db *DB) ExecutionFor(executionID string) (Execution, error) {
	var e Execution
	err := db.conn.Get(&e, "SELECT * FROM executions WHERE id = ?", executionID)
	if err != nil {
		return Execution{}, fmt.Errorf("execution for %s: %w", executionID, err)
	}
	return e, nil
}

// InsertAction stores one resolved action and returns its row id.
func (db *DB) InsertAction(executionID string, round int, res engine.Resolution) (int64, error) {
	targets, err := json.Marshal(res.Targets)
	if err != nil {
		return 0, fmt.Errorf("marshal targets: %w", err)
	}

	success := 0
	if res.Success {
		success = 1
	}
	result, err := db.conn.Exec(`INSERT INTO actions
		(execution_id, round, label, actor, text, option_type, related_triplet,
		 related_attribute, success, roll, effective_score, credibility_cost,
		 credibility_gain, rerolls, targets_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, round, res.Label, res.Actor, res.Option.Text,
		string(res.Option.Type), res.Option.RelatedTriplet,
		res.Option.RelatedAttribute, success, res.Roll, res.EffectiveScore,
		res.CredibilityCost, res.CredibilityGain, res.Rerolls, string(targets),
	)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return result.LastInsertId()
}

// InsertAssessment stores the post-action progress state.
func (db *DB) InsertAssessment(executionID string, actionID int64, progress map[string][]int, finalScore int) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	_, err = db.conn.Exec(`INSERT INTO assessments
		(execution_id, action_id, progress_json, final_weighted_score)
		VALUES (?, ?, ?, ?)`,
		executionID, actionID, string(progressJSON), finalScore,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// InsertCredibility stores the player's credibility row after an action.
func (db *DB) InsertCredibility(executionID string, actionID int64, playerFaction string, row map[string]int) error {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal credibility row: %w", err)
	}
	_, err = db.conn.Exec(`INSERT INTO credibility
		(execution_id, action_id, player_faction, snapshot_json)
		VALUES (?, ?, ?, ?)`,
		executionID, actionID, playerFaction, string(rowJSON),
	)
	if err != nil {
		return fmt.Errorf("insert credibility: %w", err)
	}
	return nil
}

// Result is the terminal record of an execution.
type Result struct {
	ExecutionID        string `db:"execution_id"`
	Successful         bool   `db:"successful"`
	Result             string `db:"result"`
	ErrorInfo          string `db:"error_info"`
	FinalWeightedScore int    `db:"final_weighted_score"`
	Rounds             int    `db:"rounds"`
	EndedAt            string `db:"ended_at"`
}

// InsertResult stores the terminal record. At most one per execution.
func (db *DB) InsertResult(r Result) error {
	if r.EndedAt == "" {
		r.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO results
		(execution_id, successful, result, error_info, final_weighted_score, rounds, ended_at)
		VALUES (:execution_id, :successful, :result, :error_info,
		 :final_weighted_score, :rounds, :ended_at)`, r)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ExecutionID, err)
	}
	return nil
}

// ResultFor returns the terminal record of an execution.
func (db *DB) ResultFor(executionID string) (Result, error) {
	var r Result
	err := db.conn.Get(&r, "SELECT * FROM results WHERE execution_id = ?", executionID)
	if err != nil {
		return Result{}, fmt.Errorf("result for %s: %w", executionID, err)
	}
	return r, nil
}

// ActionCount returns how many actions an execution recorded.
func (db *DB) ActionCount(executionID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM actions WHERE execution_id = ?", executionID)
	return n, err
}

// VacuumInto writes a compacted copy of the database to target.
func (db *DB) VacuumInto(target string) error {
	if _, err := db.conn.Exec("VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("vacuum into %s: %w", target, err)
	}
	return nil
}

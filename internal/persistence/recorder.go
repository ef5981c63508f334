// Execution recording: an observer that mirrors session progress into the
// database as a game runs.
package persistence

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkaroly/parley/internal/engine"
)

// Observer receives game lifecycle callbacks. Implementations must tolerate
// being called with a session mid-turn; they read, never mutate.
type Observer interface {
	OnGameStart(s *engine.Session, playerClass, scenario string)
	BeforeTurn(s *engine.Session, round int)
	AfterTurn(s *engine.Session, round int)
	OnGameEnd(s *engine.Session, result string, successful bool)
	OnGameError(s *engine.Session, err error)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnGameStart(*engine.Session, string, string) {}
func (NopObserver) BeforeTurn(*engine.Session, int)             {}
func (NopObserver) AfterTurn(*engine.Session, int)              {}
func (NopObserver) OnGameEnd(*engine.Session, string, bool)     {}
func (NopObserver) OnGameError(*engine.Session, error)          {}

// Recorder persists executions, actions, assessments and credibility
// snapshots. Database failures are logged and swallowed so recording never
// kills a running game.
type Recorder struct {
	db    *DB
	notes string

	executionID    string
	recordedCount  int
	resultRecorded bool
}

// NewRecorder creates a recorder over db. notes is free-form metadata for
// the executions row.
func NewRecorder(db *DB, notes string) *Recorder {
	return &Recorder{db: db, notes: notes}
}

// ExecutionID returns the current execution identifier, empty before
// OnGameStart.
func (r *Recorder) ExecutionID() string {
	return r.executionID
}

func (r *Recorder) OnGameStart(s *engine.Session, playerClass, scenario string) {
	cfg := s.Config()
	r.executionID = uuid.NewString()
	r.recordedCount = 0
	r.resultRecorded = false

	err := r.db.InsertExecution(Execution{
		ID:                   r.executionID,
		StartedAt:            time.Now().UTC().Format(time.RFC3339),
		PlayerClass:          playerClass,
		Scenario:             scenario,
		PlayerFaction:        cfg.PlayerFaction,
		WinThreshold:         cfg.WinThreshold,
		MaxRounds:            cfg.MaxRounds,
		RollSuccessThreshold: cfg.RollThreshold,
		ForceActionAfter:     cfg.ForceActionAfter,
		ActionTimeCostYears:  cfg.ActionTimeCostYears,
		Notes:                r.notes,
	})
	if err != nil {
		slog.Error("record game start failed", "error", err)
		r.executionID = ""
		return
	}
	slog.Info("execution recording started", "execution_id", r.executionID)
}

func (r *Recorder) BeforeTurn(s *engine.Session, round int) {}

// AfterTurn records every resolution appended since the last call, then the
// current assessment and credibility state.
func (r *Recorder) AfterTurn(s *engine.Session, round int) {
	if r.executionID == "" {
		return
	}
	resolutions := s.Resolutions()
	if len(resolutions) <= r.recordedCount {
		return
	}

	var lastActionID int64
	for _, res := range resolutions[r.recordedCount:] {
		id, err := r.db.InsertAction(r.executionID, round, res)
		if err != nil {
			slog.Error("record action failed", "error", err)
			return
		}
		lastActionID = id
	}
	r.recordedCount = len(resolutions)

	progress := make(map[string][]int)
	for _, a := range s.Actors() {
		progress[a.ProgressKey()] = s.Progress().Scores(a.ProgressKey())
	}
	if err := r.db.InsertAssessment(r.executionID, lastActionID, progress, s.FinalWeightedScore()); err != nil {
		slog.Error("record assessment failed", "error", err)
	}

	snapshot := s.Credibility().Snapshot()
	if err := r.db.InsertCredibility(r.executionID, lastActionID, s.PlayerFaction(), snapshot[s.PlayerFaction()]); err != nil {
		slog.Error("record credibility failed", "error", err)
	}
}

func (r *Recorder) OnGameEnd(s *engine.Session, result string, successful bool) {
	if r.executionID == "" || r.resultRecorded {
		return
	}
	err := r.db.InsertResult(Result{
		ExecutionID:        r.executionID,
		Successful:         successful,
		Result:             result,
		FinalWeightedScore: s.FinalWeightedScore(),
		Rounds:             s.Rounds(),
	})
	if err != nil {
		slog.Error("record game end failed", "error", err)
		return
	}
	r.resultRecorded = true
}

func (r *Recorder) OnGameError(s *engine.Session, gameErr error) {
	if r.executionID == "" || r.resultRecorded {
		return
	}
	res := Result{
		ExecutionID: r.executionID,
		Successful:  false,
		Result:      "N/A",
		ErrorInfo:   gameErr.Error(),
	}
	if s != nil {
		res.FinalWeightedScore = s.FinalWeightedScore()
		res.Rounds = s.Rounds()
	}
	if err := r.db.InsertResult(res); err != nil {
		slog.Error("record game error failed", "error", err)
		return
	}
	r.resultRecorded = true
}

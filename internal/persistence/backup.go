// Backup scheduling: poll session activity and snapshot the database when
// enough sessions have closed.
package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Trigger decides when a backup should run.
type Trigger interface {
	ShouldTrigger(snapshot ActivitySnapshot) bool
}

// ClosedSessionsThreshold triggers once enough sessions closed since the
// last backup.
type ClosedSessionsThreshold int

// ShouldTrigger reports whether the closed-session count reached the
// threshold.
func (t ClosedSessionsThreshold) ShouldTrigger(snapshot ActivitySnapshot) bool {
	return snapshot.ClosedSinceLastBackup >= int(t)
}

// Backup writes a compacted copy of db to target, replacing any previous
// backup file.
func Backup(db *DB, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale backup: %w", err)
	}
	if err := db.VacuumInto(target); err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}
	slog.Info("database backup written",
		"path", target,
		"size", humanize.Bytes(uint64(info.Size())),
	)
	return nil
}

// Scheduler polls the monitor and backs up the database when the trigger
// fires. One goroutine, stopped via Stop.
type Scheduler struct {
	db           *DB
	target       string
	monitor      *Monitor
	trigger      Trigger
	pollInterval time.Duration
	maxIdle      time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewScheduler wires a backup scheduler. It does not start polling until
// Start is called.
func NewScheduler(db *DB, target string, monitor *Monitor, trigger Trigger, pollInterval, maxIdle time.Duration) *Scheduler {
	return &Scheduler{
		db:           db,
		target:       target,
		monitor:      monitor,
		trigger:      trigger,
		pollInterval: pollInterval,
		maxIdle:      maxIdle,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the poll loop.
func (s *Scheduler) Start() {
	go s.run()
	slog.Info("backup scheduler started",
		"poll_interval", s.pollInterval,
		"target", s.target,
	)
}

// Stop halts the poll loop and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastBackup time.Time
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.monitor.CloseInactive(s.maxIdle)
			snapshot := s.monitor.Snapshot()
			if !s.trigger.ShouldTrigger(snapshot) {
				continue
			}
			if err := Backup(s.db, s.target); err != nil {
				slog.Error("scheduled backup failed", "error", err)
				continue
			}
			s.monitor.ResetForBackup()
			if !lastBackup.IsZero() {
				slog.Debug("previous backup", "age", humanize.Time(lastBackup))
			}
			lastBackup = time.Now()
		}
	}
}

// Session activity tracking for the backup scheduler.
package persistence

import (
	"log/slog"
	"sync"
	"time"
)

// ActivitySnapshot is a point-in-time view of session activity.
type ActivitySnapshot struct {
	ActiveSessions        int
	ClosedSinceLastBackup int
}

// Monitor tracks which game sessions are active and how many closed since
// the last backup. Safe for concurrent use.
type Monitor struct {
	mu     sync.Mutex
	last   map[string]time.Time
	closed int
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{last: make(map[string]time.Time)}
}

// Touch registers activity on a session, creating it if unknown.
func (m *Monitor) Touch(sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[sessionID] = time.Now()
}

// MarkClosed removes a session and counts it toward the backup trigger.
// Unknown sessions are ignored.
func (m *Monitor) MarkClosed(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.last[sessionID]; !ok {
		return
	}
	delete(m.last, sessionID)
	m.closed++
}

// CloseInactive closes every session idle for longer than maxIdle and
// returns how many were closed.
func (m *Monitor) CloseInactive(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, seen := range m.last {
		if seen.Before(cutoff) {
			delete(m.last, id)
			m.closed++
			n++
		}
	}
	if n > 0 {
		slog.Info("inactive sessions closed", "count", n)
	}
	return n
}

// Snapshot returns the current activity counts.
func (m *Monitor) Snapshot() ActivitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ActivitySnapshot{
		ActiveSessions:        len(m.last),
		ClosedSinceLastBackup: m.closed,
	}
}

// ResetForBackup zeroes the closed counter after a successful backup.
func (m *Monitor) ResetForBackup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = 0
}

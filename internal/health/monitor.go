// Package health aggregates per-connection success, error and rate-limit
// counters for operational visibility.
package health

import (
	"strconv"
	"sync"
	"time"
)

// UserStats is the read-only aggregate for one user's connection.
type UserStats struct {
	UserID      uint       `json:"user_id"`
	SessionLive bool       `json:"session_live"`
	Calls       uint64     `json:"calls"`
	Errors      uint64     `json:"errors"`
	RateLimits  uint64     `json:"rate_limits"`
	Retries     uint64     `json:"retries"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastCallAt  *time.Time `json:"last_call_at,omitempty"`
}

// Monitor observes every platform call. Prometheus counters cover
// dashboards; the mutex-guarded map backs the read-only JSON endpoint,
// since prometheus counters cannot be read back.
type Monitor struct {
	mu    sync.Mutex
	users map[uint]*UserStats
	live  int
}

func NewMonitor() *Monitor {
	return &Monitor{users: make(map[uint]*UserStats)}
}

func (m *Monitor) stats(userID uint) *UserStats {
	s, ok := m.users[userID]
	if !ok {
		s = &UserStats{UserID: userID}
		m.users[userID] = s
	}
	return s
}

// RecordCall records one platform call outcome for a user.
func (m *Monitor) RecordCall(userID uint, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	PlatformCallsTotal.WithLabelValues(op, outcome).Inc()

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats(userID)
	s.Calls++
	s.LastCallAt = &now
	if err != nil {
		s.Errors++
		s.LastError = err.Error()
		s.LastErrorAt = &now
	}
}

// RecordRateLimit records a platform-mandated wait.
func (m *Monitor) RecordRateLimit(userID uint, op string, delay time.Duration) {
	RateLimitWaits.WithLabelValues(op).Observe(delay.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats(userID).RateLimits++
}

// RecordRetry records one generic retry attempt.
func (m *Monitor) RecordRetry(userID uint, op string) {
	RetriesTotal.WithLabelValues(op).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats(userID).Retries++
}

// RecordRows records rows persisted by the sync engine.
func (m *Monitor) RecordRows(kind string, n int) {
	if n > 0 {
		RowsSyncedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// SessionOpened marks a pooled session live for a user.
func (m *Monitor) SessionOpened(userID uint) {
	SessionsLive.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.live++
	m.stats(userID).SessionLive = true
}

// SessionClosed marks a pooled session gone for a user.
func (m *Monitor) SessionClosed(userID uint) {
	SessionsLive.Dec()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live > 0 {
		m.live--
	}
	m.stats(userID).SessionLive = false
}

// LiveSessions returns the number of pooled sessions.
func (m *Monitor) LiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// UserSnapshot returns a copy of one user's aggregates.
func (m *Monitor) UserSnapshot(userID uint) UserStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.stats(userID)
}

// Snapshot returns a copy of every user's aggregates keyed by user id.
func (m *Monitor) Snapshot() map[string]UserStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]UserStats, len(m.users))
	for id, s := range m.users {
		out[strconv.FormatUint(uint64(id), 10)] = *s
	}
	return out
}

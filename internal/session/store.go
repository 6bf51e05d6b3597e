package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faithh/faithh/internal/intent"
)

// Exchange is one user query and the answer it received. The intent
// rides along for audit only; nothing replays it.
type Exchange struct {
	Query     string        `json:"query"`
	Answer    string        `json:"answer"`
	Timestamp time.Time     `json:"timestamp"`
	Intent    intent.Intent `json:"intent"`
}

// Session is a copy-out snapshot of one conversation. Mutating a
// returned Session never affects the store.
type Session struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	History      []Exchange `json:"history"`
}

type entry struct {
	mu sync.Mutex // serializes history mutation for this session

	id           string
	startedAt    time.Time
	lastActivity time.Time
	history      []Exchange
}

// Store keeps sessions in memory.
type Store struct {
	logger *slog.Logger

	historyLimit   int
	idleTimeout    time.Duration
	sweepWatermark int

	mu       sync.Mutex
	sessions map[string]*entry
	lastID   string
	idSerial int

	now func() time.Time // stubbed in tests
}

// Config tunes the store. Zero values fall back to the defaults used
// by the service configuration.
type Config struct {
	// HistoryLimit caps exchanges kept per session. Default 10.
	HistoryLimit int

	// IdleTimeout is how long an untouched session survives a sweep.
	// Default 1 hour.
	IdleTimeout time.Duration

	// SweepWatermark is the live session count above which mutating
	// calls trigger an opportunistic sweep. Default 50.
	SweepWatermark int
}

// New creates a session store.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Hour
	}
	if cfg.SweepWatermark <= 0 {
		cfg.SweepWatermark = 50
	}

	return &Store{
		logger:         logger,
		historyLimit:   cfg.HistoryLimit,
		idleTimeout:    cfg.IdleTimeout,
		sweepWatermark: cfg.SweepWatermark,
		sessions:       make(map[string]*entry),
		now:            time.Now,
	}
}

// GetOrCreate returns id if it names a live session. An unknown
// non-empty id creates the session under that id, so a client holding
// an expired id keeps its continuity. An empty id creates a session
// with a generated id.
func (s *Store) GetOrCreate(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if e, ok := s.sessions[id]; ok {
			e.mu.Lock()
			e.lastActivity = s.now()
			e.mu.Unlock()
			return id
		}
	}

	now := s.now()
	newID := id
	if newID == "" {
		newID = s.generateID(now)
	}
	s.sessions[newID] = &entry{
		id:           newID,
		startedAt:    now,
		lastActivity: now,
	}
	s.logger.Debug("created session", "id", newID)

	s.maybeSweepLocked()
	return newID
}

// Append records an exchange on an existing session, trimming history
// to the configured cap (oldest first). Returns ErrNotFound for an
// unknown id.
func (s *Store) Append(id, query, answer string, in intent.Intent) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, Exchange{
		Query:     query,
		Answer:    answer,
		Timestamp: s.now(),
		Intent:    in,
	})
	if over := len(e.history) - s.historyLimit; over > 0 {
		e.history = e.history[over:]
	}
	e.lastActivity = s.now()
	return nil
}

// Get returns a deep copy of the session, or ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]Exchange, len(e.history))
	copy(history, e.history)

	return &Session{
		ID:           e.id,
		StartedAt:    e.startedAt,
		LastActivity: e.lastActivity,
		History:      history,
	}, nil
}

// Delete removes a session. Reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Debug("deleted session", "id", id)
	return true
}

// Len reports the live session count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle longer than the timeout and reports how
// many were removed. Stale sessions only waste memory, so sweeping is
// hygiene, not correctness.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// maybeSweepLocked sweeps when the live count exceeds the watermark.
// Caller holds s.mu.
func (s *Store) maybeSweepLocked() {
	if len(s.sessions) > s.sweepWatermark {
		s.sweepLocked()
	}
}

func (s *Store) sweepLocked() int {
	cutoff := s.now().Add(-s.idleTimeout)
	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		stale := e.lastActivity.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept idle sessions", "removed", removed, "remaining", len(s.sessions))
	}
	return removed
}

// generateID produces a timestamped id, appending a serial when two
// sessions land on the same second. Caller holds s.mu.
func (s *Store) generateID(now time.Time) string {
	id := "session_" + now.Format("20060102_150405")
	if id == s.lastID {
		s.idSerial++
		return fmt.Sprintf("%s_%d", id, s.idSerial)
	}
	s.lastID = id
	s.idSerial = 0
	return id
}

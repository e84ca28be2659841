package form

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lims-forms/internal/metadata"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one user's edit session over one record. All access to the
// aggregator goes through Do, which runs each handler to completion before
// the next one starts.
type Session struct {
	ID        string
	Form      *metadata.FormDefinition
	User      *metadata.UserContext
	CreatedAt time.Time

	// DraftID keys the local draft of a record not yet saved to the backend.
	// It is the session id unless the session resumed an earlier draft.
	DraftID string

	mu         sync.Mutex
	agg        *Aggregator
	lastActive time.Time
}

// Do runs fn with exclusive access to the session's aggregator.
func (s *Session) Do(fn func(a *Aggregator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now().UTC()
	return fn(s.agg)
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot serializes the aggregate under the session lock.
func (s *Session) Snapshot() *Aggregate {
	var out *Aggregate
	_ = s.Do(func(a *Aggregator) error {
		out = a.Serialize()
		return nil
	})
	return out
}

// Manager keeps the open edit sessions in memory.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onEnd    func(*Session)
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// SetOnEnd registers fn to run after a session is closed or expired.
func (m *Manager) SetOnEnd(fn func(*Session)) {
	m.mu.Lock()
	m.onEnd = fn
	m.mu.Unlock()
}

// Open starts a session over def. initial may be nil for a blank record.
func (m *Manager) Open(def *metadata.FormDefinition, initial *Aggregate, user *metadata.UserContext, readOnly bool) *Session {
	return m.Resume(def, initial, user, readOnly, "")
}

// Resume starts a session that keeps saving its unsaved record under
// draftID. An empty draftID uses the new session's id.
func (m *Manager) Resume(def *metadata.FormDefinition, initial *Aggregate, user *metadata.UserContext, readOnly bool, draftID string) *Session {
	agg := NewAggregator(def, initial, m.logger)
	agg.SetReadOnly(readOnly)

	s := &Session{
		ID:        uuid.NewString(),
		Form:      def,
		User:      user,
		CreatedAt: time.Now().UTC(),
		DraftID:   draftID,
		agg:       agg,
	}
	if s.DraftID == "" {
		s.DraftID = s.ID
	}
	s.lastActive = s.CreatedAt

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session opened",
		zap.String("session", s.ID),
		zap.String("form", def.Name),
		zap.String("record", agg.RecordID()),
		zap.Bool("read_only", readOnly))
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session. Submissions still in flight for it will be ignored.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	onEnd := m.onEnd
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	_ = s.Do(func(a *Aggregator) error {
		a.End()
		return nil
	})
	if onEnd != nil {
		onEnd(s)
	}
	m.logger.Debug("session closed", zap.String("session", id))
	return nil
}

// List returns the open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Expire closes sessions idle for longer than maxIdle and returns how many
// were closed.
func (m *Manager) Expire(maxIdle time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxIdle)
	var stale []string
	for _, s := range m.List() {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s.ID)
		}
	}
	for _, id := range stale {
		_ = m.Close(id)
	}
	return len(stale)
}

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns all session state. All methods are safe for concurrent use
// and every read returns a snapshot copy.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates an empty session manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a new session in StateQueued and returns its snapshot.
func (m *Manager) Create(repoURL string) Session {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		RepoURL:   repoURL,
		State:     StateQueued,
		Progress:  0,
		Message:   stateMessages[StateQueued],
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("repo_url", repoURL))
	return *s
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return *s, nil
}

// Advance moves a session to the next pipeline state. The move must be the
// single legal successor of the current state; anything else, including any
// change after a terminal state, returns ErrInvalidTransition.
func (m *Manager) Advance(id string, to State) error {
	return m.update(id, func(s *Session) error {
		next, ok := transitions[s.State]
		if !ok || next != to {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
		}
		s.State = to
		s.Message = stateMessages[to]
		if to == StateReady {
			s.Progress = 100
		}
		return nil
	})
}

// SetProgress updates a session's progress. Progress is monotone within
// [0, 100] and frozen once the session is terminal: regressions and
// post-terminal updates are ignored, not errors.
func (m *Manager) SetProgress(id string, progress int) error {
	return m.update(id, func(s *Session) error {
		if s.State.Terminal() {
			return nil
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if progress > s.Progress {
			s.Progress = progress
		}
		return nil
	})
}

// SetEmbeddingModel records the embedding model identity for the session.
func (m *Manager) SetEmbeddingModel(id, model string, dimension int) error {
	return m.update(id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.State)
		}
		s.EmbeddingModel = model
		s.EmbeddingDimension = dimension
		return nil
	})
}

// SetStats replaces the session's indexing counters.
func (m *Manager) SetStats(id string, stats Stats) error {
	return m.update(id, func(s *Session) error {
		if s.State.Terminal() {
			return nil
		}
		s.Stats = stats
		return nil
	})
}

// Fail moves a session to StateError with a failure code. Failing an
// already-terminal session is rejected so the first outcome sticks.
func (m *Manager) Fail(id string, code FailureCode, message string) error {
	err := m.update(id, func(s *Session) error {
		if s.State.Terminal() {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.State)
		}
		s.State = StateError
		s.Message = message
		s.Failure = &Failure{Code: code, Message: message}
		return nil
	})
	if err == nil {
		m.logger.Warn("session failed",
			zap.String("session_id", id),
			zap.String("code", string(code)),
			zap.String("message", message))
	}
	return err
}

// Evict removes a session entirely. Evicting an unknown ID returns
// ErrSessionNotFound.
func (m *Manager) Evict(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// update applies fn to a session under the write lock and bumps UpdatedAt
// when fn succeeds.
func (m *Manager) update(id string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := fn(s); err != nil {
		return err
	}
	s.UpdatedAt = m.now()
	return nil
}

package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one open waitlist form
type Session struct {
	ID         string
	Controller *SubmissionController
	ExpiresAt  time.Time

	celebration *celebrationFlag
}

// TakeCelebration reports whether the page should fire its success effect.
// It returns true at most once per successful submission.
func (s *Session) TakeCelebration() bool {
	return s.celebration.take()
}

type celebrationFlag struct {
	mu      sync.Mutex
	pending bool
}

func (f *celebrationFlag) Celebrate() {
	f.mu.Lock()
	f.pending = true
	f.mu.Unlock()
}

func (f *celebrationFlag) take() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := f.pending
	f.pending = false
	return pending
}

// SessionStore keeps form sessions in memory until they expire
type SessionStore struct {
	deps        ControllerDeps
	ttl         time.Duration
	maxSessions int
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	timers   map[string]*time.Timer
	closed   bool
}

// NewSessionStore creates a store whose controllers share deps. Each
// session gets its own Celebrator. maxSessions caps the number of open
// sessions; zero means no cap.
func NewSessionStore(deps ControllerDeps, ttl time.Duration, maxSessions int) *SessionStore {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		deps:        deps,
		ttl:         ttl,
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[string]*Session),
		timers:      make(map[string]*time.Timer),
	}
}

// Create opens a new session with an empty form. It returns
// ErrTooManySessions once the store is full.
func (s *SessionStore) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.logger.Warn("Session limit reached", zap.Int("max_sessions", s.maxSessions))
		return nil, ErrTooManySessions
	}

	flag := &celebrationFlag{}
	deps := s.deps
	deps.Celebrator = flag

	session := &Session{
		ID:          uuid.NewString(),
		Controller:  NewSubmissionController(deps),
		ExpiresAt:   time.Now().Add(s.ttl),
		celebration: flag,
	}

	if s.closed {
		session.Controller.Close()
		return session, nil
	}
	s.sessions[session.ID] = session
	s.timers[session.ID] = time.AfterFunc(s.ttl, func() {
		s.Delete(session.ID)
	})

	s.logger.Debug("Opened form session", zap.String("session", session.ID))
	return session, nil
}

// Get returns a live session
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrSessionNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		s.Delete(id)
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Delete removes a session and closes its controller
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	session, exists := s.sessions[id]
	delete(s.sessions, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if exists {
		session.Controller.Close()
		s.logger.Debug("Closed form session", zap.String("session", id))
	}
}

// Len returns the number of open sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close closes every session and stops accepting new ones
func (s *SessionStore) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Controller.Close()
	}
}

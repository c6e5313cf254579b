package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SessionContext is what a guard needs from the hosting session.
type SessionContext interface {
	MaxInactiveInterval() time.Duration
}

// Session is a copy of a stored session.
type Session struct {
	ID          string
	Created     time.Time
	LastAccess  time.Time
	MaxInactive time.Duration
}

// MaxInactiveInterval implements SessionContext.
func (s Session) MaxInactiveInterval() time.Duration { return s.MaxInactive }

func (s Session) expired(now time.Time) bool {
	return s.MaxInactive > 0 && now.Sub(s.LastAccess) >= s.MaxInactive
}

// Store keeps sessions in memory. Expired sessions are removed on access and
// by Sweep.
type Store struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	maxInactive time.Duration
	sessions    map[string]*Session
}

// NewStore creates a store whose sessions expire after maxInactive without a
// touch. A nil clock means the real clock.
func NewStore(maxInactive time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:       clock,
		maxInactive: maxInactive,
		sessions:    make(map[string]*Session),
	}
}

// MaxInactive returns the inactivity limit given to new sessions.
func (s *Store) MaxInactive() time.Duration { return s.maxInactive }

// Create starts a new session.
func (s *Store) Create() Session {
	now := s.clock.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		Created:     now,
		LastAccess:  now,
		MaxInactive: s.maxInactive,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Debug().Str("session", sess.ID).Dur("max_inactive", s.maxInactive).Msg("session created")
	return *sess
}

// Get returns the session without counting as activity.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	return *sess, nil
}

// Touch records activity on the session.
func (s *Store) Touch(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	sess.LastAccess = s.clock.Now()
	return *sess, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) lookupLocked(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.expired(s.clock.Now()) {
		delete(s.sessions, id)
		log.Info().Str("session", id).Msg("session expired")
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Sweep removes expired sessions and returns how many it removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(s.sessions)).Msg("expired sessions swept")
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

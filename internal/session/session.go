// Package session holds the current user identity and bearer token. The core
// only ever reads it; it is written by the auth boundary: login, logout, or a
// 401 from any endpoint.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coterie-chat/coterie/internal/db"
	"github.com/coterie-chat/coterie/internal/logging"
)

const persistTimeout = 5 * time.Second

// Session is the shared-read, single-writer session context. A cleared
// session reports an empty token, which every supervisor and poll loop
// treats as "stop retrying".
type Session struct {
	mu       sync.RWMutex
	username string
	token    string

	repo    *db.SessionRepository
	onClear []func()
}

// New creates a session backed by the given repository. A nil repository
// keeps the session in memory only.
func New(repo *db.SessionRepository) *Session {
	return &Session{repo: repo}
}

// Restore loads the persisted session, if any. Returns false when no session
// is stored.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.repo == nil {
		return false, nil
	}
	stored, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNoSession) {
			return false, nil
		}
		return false, err
	}

	s.mu.Lock()
	s.username = stored.Username
	s.token = stored.Token
	s.mu.Unlock()
	return true, nil
}

// Establish records a fresh login and persists it.
func (s *Session) Establish(ctx context.Context, username, token string) error {
	s.mu.Lock()
	s.username = username
	s.token = token
	s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	return s.repo.Save(ctx, username, token)
}

// Token implements the token source read by the REST client and the
// connection supervisors. Empty when no session is live.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Username reports the authenticated user, or "".
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// OnClear registers a callback fired when the session is invalidated, from
// explicit logout or from a 401.
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// Clear drops the token, removes the persisted copy, and notifies observers.
// Idempotent: clearing an already-empty session does nothing.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.username = ""
	s.token = ""
	observers := make([]func(), len(s.onClear))
	copy(observers, s.onClear)
	s.mu.Unlock()

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.repo.Clear(ctx); err != nil {
			logging.Warn().Err(err).Msg("failed to clear persisted session")
		}
	}

	for _, fn := range observers {
		fn()
	}
}

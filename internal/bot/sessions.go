package bot

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aqzsshi/esser-bot/internal/platform"
)

// pendingCreation carries the take-modal inputs across the participant-select
// step of the manual-add flow.
type pendingCreation struct {
	GuildID         string
	OrgID           string
	Author          platform.Actor
	DurationMinutes int
	Name            string
}

// sessionStore holds pending creations keyed by a one-shot token. Sessions
// are consumed exactly once and vanish on restart; no expiry timer needed.
type sessionStore struct {
	mu sync.Mutex
	m  map[string]pendingCreation
}

func newSessionStore() *sessionStore {
	return &sessionStore{m: make(map[string]pendingCreation)}
}

// put stores the session and returns its token.
func (s *sessionStore) put(p pendingCreation) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.m[token] = p
	s.mu.Unlock()
	return token
}

// take removes and returns the session for the token.
func (s *sessionStore) take(token string) (pendingCreation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[token]
	if ok {
		delete(s.m, token)
	}
	return p, ok
}

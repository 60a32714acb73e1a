package proteus

import (
	"sync"

	"github.com/raterudder/proteus/pkg/types"
)

// sessionStore holds the current session. Both tokens are always written
// together.
type sessionStore struct {
	mu      sync.RWMutex
	session types.Session
}

func (s *sessionStore) get() types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionStore) set(sess types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
}

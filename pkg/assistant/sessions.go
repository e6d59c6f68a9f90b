package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	chat     *Chat
	lastUsed time.Time
}

// Sessions holds chat conversations by ID for the HTTP and MCP surfaces.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	newChat  func() *Chat
	now      func() time.Time
}

// NewSessions creates an empty session store. newChat builds each new conversation.
func NewSessions(newChat func() *Chat) *Sessions {
	return &Sessions{
		sessions: make(map[string]*session),
		newChat:  newChat,
		now:      time.Now,
	}
}

// Get returns the conversation for id, starting a new one under a fresh ID if id is
// empty or unknown. The returned ID identifies the conversation used.
func (s *Sessions) Get(id string) (string, *Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.lastUsed = s.now()
		return id, sess.chat
	}

	id = uuid.NewString()
	sess := &session{chat: s.newChat(), lastUsed: s.now()}
	s.sessions[id] = sess
	return id, sess.chat
}

// Delete ends the conversation for id. It reports whether it existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Prune ends conversations idle for longer than idle and returns how many were ended.
func (s *Sessions) Prune(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	n := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of open conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

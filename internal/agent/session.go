package agent

import (
	"sync"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

// Session is one conversation's in-flight state: the ordered model input
// items built up so far and the tool session holding the loaded dataset.
// Sessions are owned by the caller and passed into Query; nothing in this
// package is process-global.
type Session struct {
	conversationID int64
	tools          *tools.Session

	mu    sync.Mutex
	items []llm.Item

	// run serializes queries against the same session. Distinct sessions
	// are independent.
	run sync.Mutex
}

// NewSession creates an empty session for a conversation. Ad hoc sessions
// (CLI runs, the bare analyze endpoint) use conversation id 0.
func NewSession(conversationID int64) *Session {
	return &Session{
		conversationID: conversationID,
		tools:          tools.NewSession(conversationID),
	}
}

// ConversationID returns the owning conversation's id.
func (s *Session) ConversationID() int64 {
	return s.conversationID
}

// Tools returns the per-session tool state.
func (s *Session) Tools() *tools.Session {
	return s.tools
}

// Append adds committed turns to the in-memory item list.
func (s *Session) Append(items ...llm.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
}

// Items returns a copy of the accumulated turns in append order.
func (s *Session) Items() []llm.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Item(nil), s.items...)
}

// Empty reports whether the session has no turns yet.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

// Hydrate seeds the item list from persisted history. It only applies to a
// fresh session; a session that already carries turns is left untouched.
func (s *Session) Hydrate(items []llm.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		s.items = append([]llm.Item(nil), items...)
	}
}

// Reset drops the turn history and the loaded dataset.
func (s *Session) Reset() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	s.tools.Reset()
}

// Sessions is a table of live sessions keyed by conversation id.
type Sessions struct {
	mu   sync.Mutex
	byID map[int64]*Session
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[int64]*Session)}
}

// Get returns the session for a conversation, creating it on first use.
func (t *Sessions) Get(conversationID int64) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[conversationID]; ok {
		return s
	}
	s := NewSession(conversationID)
	t.byID[conversationID] = s
	return s
}

// Delete drops one conversation's session.
func (t *Sessions) Delete(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, conversationID)
}

// Reset drops every session, clearing all dataset contexts.
func (t *Sessions) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[int64]*Session)
}

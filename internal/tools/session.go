package tools

import (
	"sync"

	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
)

// Session is the per-conversation tool state: the dataset currently loaded
// for analysis. Tool handlers read and replace it; nothing here is global,
// so concurrent conversations cannot clobber each other's data context.
type Session struct {
	mu             sync.Mutex
	conversationID int64
	frame          *dataset.Frame
}

// NewSession creates an empty session bound to a conversation id. Ad hoc
// sessions (CLI runs, the bare analyze endpoint) use id 0.
func NewSession(conversationID int64) *Session {
	return &Session{conversationID: conversationID}
}

// ConversationID returns the owning conversation's id.
func (s *Session) ConversationID() int64 {
	return s.conversationID
}

// Frame returns the loaded dataset, or nil when none is loaded.
func (s *Session) Frame() *dataset.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// SetFrame replaces the loaded dataset.
func (s *Session) SetFrame(frame *dataset.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

// Reset clears the loaded dataset.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
}

package agent

import (
	"github.com/google/uuid"

	"github.com/zatuliveter/ai-da-dba/pkg/store"
)

// Session is the transient per-connection state. It is owned exclusively
// by its connection handler: no two turns for the same session ever run
// concurrently, and nothing here is shared between sessions.
type Session struct {
	ID       string
	Database string
	ChatID   int64
	Role     Role

	// Messages mirrors the persisted transcript of the active chat:
	// user and assistant entries plus tool_call projections.
	Messages []store.ChatMessage
}

func NewSession() *Session {
	return &Session{
		ID:   uuid.NewString(),
		Role: RoleAssistant,
	}
}

// Reset clears the conversation state when the session switches target
// database or chat.
func (s *Session) Reset() {
	s.ChatID = 0
	s.Messages = nil
}

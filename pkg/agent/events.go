package agent

import "github.com/zatuliveter/ai-da-dba/pkg/store"

// EventType enumerates the outbound envelope kinds of the session
// transport.
type EventType string

const (
	EventSystem      EventType = "system"
	EventHistory     EventType = "history"
	EventChatCreated EventType = "chat_created"
	EventStream      EventType = "stream"
	EventToolCall    EventType = "tool_call"
	EventStreamEnd   EventType = "stream_end"
	EventError       EventType = "error"
)

// Event is one typed message produced by the agent loop (or the session
// handler) for the transport layer. It marshals directly into the
// websocket wire format.
type Event struct {
	Type     EventType              `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Tool     string                 `json:"tool,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Chat     *store.Chat            `json:"chat,omitempty"`
	Messages []store.ChatMessage    `json:"messages,omitempty"`
}

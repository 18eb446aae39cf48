package llms

import "context"

// Message roles accepted by the chat-completions backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the model-facing conversation context.
// Content is a plain string on purpose: some backends reject null content
// on assistant messages that carry tool calls, so absent text is always
// represented as the empty string.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is one fully reassembled tool invocation issued by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes one tool in the catalog sent to the backend.
// Parameters is a JSON-schema-shaped object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCallDelta is one streamed fragment of a tool call. Index is nil when
// the backend omitted it on this chunk; the consumer is responsible for
// resolving fragment identity in that case.
type ToolCallDelta struct {
	Index     *int
	ID        string
	Name      string
	Arguments string
}

type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
	ChunkError    ChunkType = "error"
)

// StreamChunk is one incremental delta of a streaming completion.
type StreamChunk struct {
	Type     ChunkType
	Text     string
	ToolCall *ToolCallDelta
	Err      error
}

// Provider is the chat-completion-with-tool-calls contract the agent loop
// consumes. An error from ChatStream means the request itself could not be
// issued; stream-level failures arrive as ChunkError on the channel.
type Provider interface {
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
	ModelName() string
}

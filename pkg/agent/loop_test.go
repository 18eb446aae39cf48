package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatuliveter/ai-da-dba/pkg/llms"
	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
	"github.com/zatuliveter/ai-da-dba/pkg/store"
	"github.com/zatuliveter/ai-da-dba/pkg/tools"
)

// scriptedProvider plays back one chunk script per round. When the
// scripts run out, the last one repeats, which makes round-cap tests
// trivial to express.
type scriptedProvider struct {
	rounds   [][]llms.StreamChunk
	calls    int
	requests [][]llms.Message
	err      error
}

func (p *scriptedProvider) ChatStream(ctx context.Context, messages []llms.Message, defs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	p.requests = append(p.requests, messages)
	if p.err != nil {
		return nil, p.err
	}

	script := p.rounds[len(p.rounds)-1]
	if p.calls < len(p.rounds) {
		script = p.rounds[p.calls]
	}
	p.calls++

	ch := make(chan llms.StreamChunk, len(script)+1)
	for _, chunk := range script {
		ch <- chunk
	}
	ch <- llms.StreamChunk{Type: llms.ChunkDone}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(t *testing.T, provider llms.Provider) (*Agent, *store.Store) {
	t.Helper()
	log := testLogger()

	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	connector := mssql.NewConnector("localhost", "", "", log)
	registry := tools.NewRegistry(connector, log)

	return New(provider, registry, st, log), st
}

func newTestSession(t *testing.T, st *store.Store) *Session {
	t.Helper()
	chat, err := st.CreateChat(context.Background(), "testdb", "")
	require.NoError(t, err)

	sess := NewSession()
	sess.Database = "testdb"
	sess.ChatID = chat.ID
	return sess
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func textDelta(text string) llms.StreamChunk {
	return llms.StreamChunk{Type: llms.ChunkText, Text: text}
}

func toolDelta(id, name, args string) llms.StreamChunk {
	return llms.StreamChunk{Type: llms.ChunkToolCall, ToolCall: &llms.ToolCallDelta{
		ID: id, Name: name, Arguments: args,
	}}
}

func TestRunFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{textDelta("All "), textDelta("good.")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "how is my db?"))

	require.NotEmpty(t, events)
	assert.Equal(t, EventStreamEnd, events[len(events)-1].Type)

	var streamed strings.Builder
	for _, ev := range events {
		if ev.Type == EventStream {
			streamed.WriteString(ev.Content)
		}
	}
	assert.Equal(t, "All good.", streamed.String())

	// Transcript persisted: user utterance plus final answer.
	messages, err := st.GetMessages(context.Background(), sess.ChatID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "how is my db?", messages[0].Content)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	assert.Equal(t, "All good.", messages[1].Content)
}

func TestRunToolRoundThenAnswer(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{toolDelta("call_1", tools.OpCurrentUTCTime, "{}")},
		{textDelta("Done.")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "what time is it?"))

	// Exactly one further round after the tool-bearing round.
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, EventStreamEnd, events[len(events)-1].Type)

	var toolEvents []Event
	for _, ev := range events {
		if ev.Type == EventToolCall {
			toolEvents = append(toolEvents, ev)
		}
	}
	require.Len(t, toolEvents, 1)
	assert.Equal(t, tools.OpCurrentUTCTime, toolEvents[0].Tool)

	// Second round context: assistant entry with the directive (content
	// present, possibly empty, never absent) followed by the correlated
	// tool result.
	secondCtx := provider.requests[1]
	var assistantMsg, toolMsg *llms.Message
	for i := range secondCtx {
		switch {
		case len(secondCtx[i].ToolCalls) > 0:
			assistantMsg = &secondCtx[i]
		case secondCtx[i].Role == llms.RoleTool:
			toolMsg = &secondCtx[i]
		}
	}
	require.NotNil(t, assistantMsg)
	assert.Equal(t, llms.RoleAssistant, assistantMsg.Role)
	assert.Equal(t, "", assistantMsg.Content)
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "utc_time")

	// Transcript carries a human-readable projection of the invocation.
	messages, err := st.GetMessages(context.Background(), sess.ChatID)
	require.NoError(t, err)
	var projections []string
	for _, m := range messages {
		if m.Role == store.RoleToolCall {
			projections = append(projections, m.Content)
		}
	}
	require.Len(t, projections, 1)
	assert.Equal(t, tools.OpCurrentUTCTime+"({})", projections[0])
}

func TestRunRoundCapExceeded(t *testing.T) {
	// A backend that always returns tool calls must terminate with a
	// round-cap error after exactly the cap number of rounds.
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{toolDelta("call_1", tools.OpCurrentUTCTime, "{}")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "loop forever"))

	assert.Equal(t, DefaultMaxToolRounds, provider.calls)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Content, "maximum tool call rounds")
}

func TestRunBackendCallFails(t *testing.T) {
	provider := &scriptedProvider{err: assert.AnError}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "hello"))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Content, "LLM error")
}

func TestRunStreamBreaks(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{textDelta("partial"), {Type: llms.ChunkError, Err: assert.AnError}},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "hello"))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
}

func TestRunWithoutProvider(t *testing.T) {
	ag, st := newTestAgent(t, nil)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "hello"))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Content, "not configured")
}

func TestRunMalformedDirectiveArguments(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{toolDelta("call_1", tools.OpCurrentUTCTime, "{not json")},
		{textDelta("ok")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	events := collect(ag.Run(context.Background(), sess, "go"))

	var toolEvent *Event
	for i := range events {
		if events[i].Type == EventToolCall {
			toolEvent = &events[i]
		}
	}
	require.NotNil(t, toolEvent)
	assert.Empty(t, toolEvent.Args)
	assert.Equal(t, EventStreamEnd, events[len(events)-1].Type)
}

func TestRunWhitespaceOnlyUtteranceIsSent(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{textDelta("hm")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)

	collect(ag.Run(context.Background(), sess, "   "))

	require.Len(t, provider.requests, 1)
	first := provider.requests[0]
	require.NotEmpty(t, first)
	last := first[len(first)-1]
	assert.Equal(t, llms.RoleUser, last.Role)
	assert.Equal(t, "   ", last.Content)
}

func TestRunSystemPromptLeadsContext(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{textDelta("ok")},
	}}
	ag, st := newTestAgent(t, provider)
	sess := newTestSession(t, st)
	sess.Role = RoleDBA

	collect(ag.Run(context.Background(), sess, "hi"))

	first := provider.requests[0]
	require.NotEmpty(t, first)
	assert.Equal(t, llms.RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "query optimization specialist")
	assert.Contains(t, first[0].Content, "testdb")
}

func TestTranslateHistoryDropsToolCallProjections(t *testing.T) {
	history := []store.ChatMessage{
		{Role: store.RoleUser, Content: "q"},
		{Role: store.RoleToolCall, Content: "list_tables({})"},
		{Role: store.RoleAssistant, Content: "a"},
	}

	messages := translateHistory(history)
	require.Len(t, messages, 2)
	assert.Equal(t, llms.RoleUser, messages[0].Role)
	assert.Equal(t, llms.RoleAssistant, messages[1].Role)
}

func TestCapObservation(t *testing.T) {
	long := strings.Repeat("x", 100)

	capped := capObservation(long, 10)
	assert.Equal(t, strings.Repeat("x", 10)+ObservationTruncationMarker, capped)

	// Idempotent beyond the marker.
	again := capObservation(capped, 10)
	assert.Equal(t, capped, again)

	short := "short"
	assert.Equal(t, short, capObservation(short, 10))
}

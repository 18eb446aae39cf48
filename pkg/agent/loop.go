package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zatuliveter/ai-da-dba/pkg/llms"
	"github.com/zatuliveter/ai-da-dba/pkg/store"
	"github.com/zatuliveter/ai-da-dba/pkg/tools"
)

const (
	// DefaultMaxToolRounds is the hard cap on model round trips per user
	// turn. Reaching it is a fatal outcome for the turn, never retried.
	DefaultMaxToolRounds = 10

	// DefaultMaxObservation caps one tool observation fed back into model
	// context.
	DefaultMaxObservation = 80_000

	// ObservationTruncationMarker is appended to capped observations.
	ObservationTruncationMarker = "\n\n[... tool result truncated due to size ...]"
)

// Agent drives the bounded observe-decide-act loop for one user turn at a
// time. It is stateless across sessions; per-conversation state lives in
// the Session passed to Run.
type Agent struct {
	provider       llms.Provider
	registry       *tools.Registry
	store          *store.Store
	log            *slog.Logger
	maxRounds      int
	maxObservation int
}

func New(provider llms.Provider, registry *tools.Registry, st *store.Store, log *slog.Logger) *Agent {
	return &Agent{
		provider:       provider,
		registry:       registry,
		store:          st,
		log:            log.With("component", "agent"),
		maxRounds:      DefaultMaxToolRounds,
		maxObservation: DefaultMaxObservation,
	}
}

// Run executes one user turn. Events stream on the returned channel in
// order; the channel closes when the turn terminates (final answer, error,
// or round cap). The caller must not issue another turn for the same
// session until the channel is drained.
func (a *Agent) Run(ctx context.Context, sess *Session, userText string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		a.run(ctx, sess, userText, events)
	}()
	return events
}

func (a *Agent) run(ctx context.Context, sess *Session, userText string, events chan<- Event) {
	if a.provider == nil {
		events <- Event{Type: EventError, Content: "LLM backend is not configured."}
		return
	}

	// A whitespace-only utterance is still a turn; it is sent as-is.
	a.record(ctx, sess, events, store.ChatMessage{Role: store.RoleUser, Content: userText})

	description, err := a.store.GetDescription(ctx, sess.Database)
	if err != nil {
		a.log.Warn("failed to load database description", "database", sess.Database, "error", err)
	}

	msgContext := []llms.Message{{
		Role:    llms.RoleSystem,
		Content: SystemPrompt(sess.Role, sess.Database, description),
	}}
	msgContext = append(msgContext, translateHistory(sess.Messages)...)

	catalog := a.registry.Definitions()

	for round := 0; round < a.maxRounds; round++ {
		a.log.Info("agent round", "session", sess.ID, "round", round+1, "context_messages", len(msgContext))

		stream, err := a.provider.ChatStream(ctx, msgContext, catalog)
		if err != nil {
			a.log.Error("LLM call failed", "session", sess.ID, "error", err)
			events <- Event{Type: EventError, Content: fmt.Sprintf("LLM error: %v", err)}
			return
		}

		var answer strings.Builder
		acc := newDirectiveAccumulator()
		var streamErr error

		for chunk := range stream {
			switch chunk.Type {
			case llms.ChunkText:
				answer.WriteString(chunk.Text)
				events <- Event{Type: EventStream, Content: chunk.Text}
			case llms.ChunkToolCall:
				acc.Add(chunk.ToolCall)
			case llms.ChunkError:
				streamErr = chunk.Err
			case llms.ChunkDone:
			}
		}

		if streamErr != nil {
			a.log.Error("LLM stream failed", "session", sess.ID, "error", streamErr)
			events <- Event{Type: EventError, Content: fmt.Sprintf("LLM error: %v", streamErr)}
			return
		}

		if acc.Empty() {
			// No tool directives: this is the final answer.
			a.record(ctx, sess, events, store.ChatMessage{
				Role:    store.RoleAssistant,
				Content: answer.String(),
			})
			events <- Event{Type: EventStreamEnd}
			return
		}

		directives := acc.Finalize()

		// The assistant context entry always carries a content string,
		// possibly empty: some backends reject null content alongside
		// tool calls.
		msgContext = append(msgContext, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   answer.String(),
			ToolCalls: directivesToToolCalls(directives),
		})

		var transcript []store.ChatMessage
		if answer.Len() > 0 {
			transcript = append(transcript, store.ChatMessage{
				Role:    store.RoleAssistant,
				Content: answer.String(),
			})
		}

		for _, d := range directives {
			args := parseArguments(d.Arguments)

			a.log.Info("tool call", "session", sess.ID, "tool", d.Name)
			events <- Event{Type: EventToolCall, Tool: d.Name, Args: args}

			observation := a.registry.Dispatch(ctx, d.Name, args, sess.Database)
			observation = capObservation(observation, a.maxObservation)

			msgContext = append(msgContext, llms.Message{
				Role:       llms.RoleTool,
				Content:    observation,
				ToolCallID: d.ID,
			})

			transcript = append(transcript, store.ChatMessage{
				Role:    store.RoleToolCall,
				Content: projectDirective(d.Name, args),
			})
		}

		a.record(ctx, sess, events, transcript...)
	}

	events <- Event{Type: EventError, Content: "Agent reached maximum tool call rounds."}
}

// record appends transcript entries to the session's in-memory history and
// persists them to the active chat. The in-memory history always mirrors
// the persisted transcript.
func (a *Agent) record(ctx context.Context, sess *Session, events chan<- Event, messages ...store.ChatMessage) {
	sess.Messages = append(sess.Messages, messages...)

	if sess.ChatID == 0 {
		return
	}
	if err := a.store.AppendMessages(ctx, sess.ChatID, messages); err != nil {
		a.log.Error("failed to persist transcript", "chat", sess.ChatID, "error", err)
	}
}

// translateHistory converts transcript entries into the backend's role
// set. tool_call projections exist for human display only and are dropped
// from model replay.
func translateHistory(history []store.ChatMessage) []llms.Message {
	messages := make([]llms.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			messages = append(messages, llms.Message{Role: llms.RoleUser, Content: m.Content})
		case store.RoleAssistant:
			messages = append(messages, llms.Message{Role: llms.RoleAssistant, Content: m.Content})
		case store.RoleSystem:
			messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: m.Content})
		}
	}
	return messages
}

// parseArguments parses accumulated argument text. Malformed argument text
// degrades to an empty parameter set rather than failing the round.
func parseArguments(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}

func directivesToToolCalls(directives []Directive) []llms.ToolCall {
	calls := make([]llms.ToolCall, 0, len(directives))
	for _, d := range directives {
		calls = append(calls, llms.ToolCall{
			ID:        d.ID,
			Name:      d.Name,
			Arguments: d.Arguments,
		})
	}
	return calls
}

// projectDirective renders the human-readable "name(args)" transcript
// entry for one invoked operation.
func projectDirective(name string, args map[string]interface{}) string {
	compact, err := json.Marshal(args)
	if err != nil {
		compact = []byte("{}")
	}
	return fmt.Sprintf("%s(%s)", name, compact)
}

// capObservation truncates an observation to the configured cap, with a
// marker. Re-applying it to already-capped text is a no-op in content
// beyond the marker.
func capObservation(observation string, max int) string {
	if len(observation) <= max {
		return observation
	}
	return observation[:max] + ObservationTruncationMarker
}

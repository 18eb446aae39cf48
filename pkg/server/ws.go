package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zatuliveter/ai-da-dba/pkg/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundEnvelope is one typed JSON message from the client.
type inboundEnvelope struct {
	Type     string `json:"type"`
	Database string `json:"database,omitempty"`
	Role     string `json:"role,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
}

// handleWebSocket owns one session for the lifetime of the connection.
// Envelopes are processed strictly in order; an agent turn runs to
// completion before the next envelope is read, so no two rounds for the
// same session ever overlap.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sess := agent.NewSession()
	s.log.Info("session started", "session", sess.ID)

	send := func(ev agent.Event) bool {
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Info("client disconnected", "session", sess.ID)
			return false
		}
		return true
	}

	for {
		var envelope inboundEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			s.log.Info("session closed", "session", sess.ID)
			return
		}

		switch envelope.Type {
		case "set_database":
			sess.Database = envelope.Database
			sess.Role = agent.ParseRole(envelope.Role)
			sess.Reset()
			if !send(agent.Event{
				Type:    agent.EventSystem,
				Content: fmt.Sprintf("Connected to database: %s", envelope.Database),
			}) {
				return
			}

		case "new_chat":
			if sess.Database == "" {
				if !send(agent.Event{Type: agent.EventError, Content: "Please select a database first."}) {
					return
				}
				continue
			}
			chat, err := s.store.CreateChat(ctx, sess.Database, envelope.Title)
			if err != nil {
				s.log.Error("failed to create chat", "error", err)
				if !send(agent.Event{Type: agent.EventError, Content: err.Error()}) {
					return
				}
				continue
			}
			sess.ChatID = chat.ID
			sess.Messages = nil
			if !send(agent.Event{Type: agent.EventChatCreated, Chat: &chat}) {
				return
			}

		case "select_chat":
			database, err := s.store.ChatDatabase(ctx, envelope.ChatID)
			if err != nil {
				if !send(agent.Event{Type: agent.EventError, Content: err.Error()}) {
					return
				}
				continue
			}
			messages, err := s.store.GetMessages(ctx, envelope.ChatID)
			if err != nil {
				if !send(agent.Event{Type: agent.EventError, Content: err.Error()}) {
					return
				}
				continue
			}
			sess.Database = database
			sess.ChatID = envelope.ChatID
			sess.Messages = messages
			if !send(agent.Event{Type: agent.EventHistory, Messages: messages}) {
				return
			}

		case "message":
			if sess.Database == "" {
				if !send(agent.Event{Type: agent.EventError, Content: "Please select a database first."}) {
					return
				}
				continue
			}
			if sess.ChatID == 0 {
				if !send(agent.Event{Type: agent.EventError, Content: "Please select or create a chat first."}) {
					return
				}
				continue
			}

			// Sequential by construction: the next envelope is not read
			// until this turn's event stream is drained.
			for ev := range s.agent.Run(ctx, sess, envelope.Content) {
				if !send(ev) {
					return
				}
			}

		default:
			if !send(agent.Event{
				Type:    agent.EventError,
				Content: fmt.Sprintf("Unknown message type: %s", envelope.Type),
			}) {
				return
			}
		}
	}
}

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zatuliveter/ai-da-dba/pkg/agent"
	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
	"github.com/zatuliveter/ai-da-dba/pkg/store"
)

// Server exposes the REST endpoints and the websocket chat transport.
type Server struct {
	agent     *agent.Agent
	store     *store.Store
	connector *mssql.Connector
	log       *slog.Logger
}

func New(ag *agent.Agent, st *store.Store, connector *mssql.Connector, log *slog.Logger) *Server {
	return &Server{
		agent:     ag,
		store:     st,
		connector: connector,
		log:       log.With("component", "server"),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/databases", s.handleListDatabases)
	r.Get("/api/databases/{name}/description", s.handleGetDescription)
	r.Put("/api/databases/{name}/description", s.handleSetDescription)

	r.Get("/api/chats", s.handleListChats)
	r.Delete("/api/chats/{id}", s.handleDeleteChat)
	r.Post("/api/chats/{id}/star", s.handleStarChat)
	r.Post("/api/chats/{id}/title", s.handleRenameChat)

	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	databases, err := s.connector.ListDatabases(r.Context())
	if err != nil {
		s.log.Error("failed to list databases", "error", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"databases": []string{},
			"error":     err.Error(),
		})
		return
	}
	if databases == nil {
		databases = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"databases": databases})
}

func (s *Server) handleGetDescription(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	description, err := s.store.GetDescription(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "description": description})
}

func (s *Server) handleSetDescription(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SetDescription(r.Context(), name, body.Description); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "description": body.Description})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	if database == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "database query parameter is required"})
		return
	}

	chats, err := s.store.ListChats(r.Context(), database)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteChat(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStarChat(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Starred bool `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SetStarred(r.Context(), id, body.Starred); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.RenameTitle(r.Context(), id, body.Title); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/user/voiceline/internal/controller"
	"github.com/user/voiceline/internal/registry"
	"github.com/user/voiceline/internal/types"
)

// Server is a lightweight HTTP handler for the signaling webhook endpoints
// and the debug API.
type Server struct {
	controller *controller.Controller
	registry   *registry.Registry
	mux        *http.ServeMux
}

// NewServer creates a webhook Server wired to the session controller and
// registry.
func NewServer(ctrl *controller.Controller, reg *registry.Registry) *Server {
	s := &Server{
		controller: ctrl,
		registry:   reg,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /events/joined", s.handleJoined)
	s.mux.HandleFunc("POST /events/left", s.handleLeft)
	s.mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// joinedRequest is the JSON body for POST /events/joined.
type joinedRequest struct {
	Room      string `json:"room"`
	AgentID   string `json:"agent_id"`
	CallID    string `json:"call_id"`
	Language  string `json:"language"`
	IP        string `json:"ip"`
	Device    string `json:"device"`
	UserAgent string `json:"user_agent"`
}

func (s *Server) handleJoined(w http.ResponseWriter, r *http.Request) {
	var req joinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Room == "" {
		http.Error(w, `{"error":"room is required"}`, http.StatusBadRequest)
		return
	}

	session, err := s.controller.StartSession(r.Context(), types.JoinEvent{
		Room:      req.Room,
		AgentID:   types.AgentID(req.AgentID),
		CallID:    types.CallID(req.CallID),
		Language:  req.Language,
		IP:        req.IP,
		Device:    req.Device,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateSession) {
			http.Error(w, `{"error":"session already exists"}`, http.StatusConflict)
			return
		}
		slog.Error("start session failed", "room", req.Room, "error", err)
		http.Error(w, `{"error":"failed to start session"}`, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"session_id": string(session.ID())})
}

// leftRequest is the JSON body for POST /events/left.
type leftRequest struct {
	Room string `json:"room"`
}

func (s *Server) handleLeft(w http.ResponseWriter, r *http.Request) {
	var req leftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Room == "" {
		http.Error(w, `{"error":"room is required"}`, http.StatusBadRequest)
		return
	}

	session, ok := s.controller.Session(types.SessionID(req.Room))
	if !ok {
		// Already finalized, or never existed. Leaving is idempotent.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "not active"})
		return
	}
	session.Cleanup()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "finalized"})
}

type sessionResponse struct {
	SessionID      string `json:"session_id"`
	AgentID        string `json:"agent_id,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	Language       string `json:"language"`
	StartTime      string `json:"start_time"`
	UserMessages   int    `json:"user_messages"`
	AgentResponses int    `json:"agent_responses"`
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	records := s.registry.List()

	result := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, sessionResponse{
			SessionID:      string(rec.SessionID),
			AgentID:        string(rec.AgentID),
			CallID:         string(rec.CallID),
			Language:       rec.Language,
			StartTime:      rec.StartTime.Format(time.RFC3339),
			UserMessages:   rec.TotalUserMessages,
			AgentResponses: rec.TotalAgentResponses,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime > result[j].StartTime
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

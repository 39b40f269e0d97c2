package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/greatowl/receptionist/internal/backend"
	"github.com/greatowl/receptionist/internal/chat"
	"github.com/greatowl/receptionist/internal/session"
)

type chatRequest struct {
	Message      string `json:"message"`
	SessionID    string `json:"session_id"`
	Name         string `json:"name,omitempty"`
	BusinessType string `json:"business_type,omitempty"`
	// Stream defaults to true; callers wanting one JSON object send false.
	Stream *bool `json:"stream,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
	Scope     string `json:"scope,omitempty"`
}

type resetResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message cannot be empty"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	turn := chat.TurnRequest{
		SessionID:    req.SessionID,
		Message:      req.Message,
		Name:         req.Name,
		BusinessType: req.BusinessType,
	}

	if req.Stream != nil && !*req.Stream {
		s.handleChatJSON(w, r, turn)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	err := s.orchestrator.StreamTurn(r.Context(), turn, func(fragment string) error {
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, backend.ErrAborted) {
		// The response is already in flight; nothing more can be sent.
		s.logger.Error("chat turn failed mid-response", "session_id", turn.SessionID, "error", err)
	}
}

func (s *Server) handleChatJSON(w http.ResponseWriter, r *http.Request, turn chat.TurnRequest) {
	reply, err := s.orchestrator.CompleteTurn(r.Context(), turn)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: chat.FallbackReply})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}

	scope := session.ScopeConversation
	if req.Scope == "all" {
		scope = session.ScopeAll
	}

	status := "not_found"
	if s.store.Reset(req.SessionID, scope) {
		status = "reset"
	}
	writeJSON(w, http.StatusOK, resetResponse{Status: status, SessionID: req.SessionID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"upstream_configured": s.upstreamReady,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

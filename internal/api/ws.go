package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greatowl/receptionist/internal/backend"
	"github.com/greatowl/receptionist/internal/chat"
)

// handleChatSocket relays one chat turn over a websocket: the client sends a
// single JSON request, the server streams the reply as text messages and then
// closes normally. The fragment sequence is identical to the HTTP stream.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range s.cfg.AllowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid request"),
			closeDeadline())
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "message cannot be empty"),
			closeDeadline())
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

	err = s.orchestrator.StreamTurn(r.Context(), turn, func(fragment string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(fragment))
	})
	if err != nil && !errors.Is(err, backend.ErrAborted) {
		s.logger.Error("websocket turn failed", "session_id", turn.SessionID, "error", err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		closeDeadline())
}

func closeDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}

package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/relay"
	"github.com/comigor/concierge-go/internal/sse"
	"github.com/comigor/concierge-go/pkg/httputil"
)

const maxChatBody = 1 << 20

type chatHandler struct {
	relay *relay.Relay
}

// chatRequest keeps both fields loosely typed: a non-string session_id is
// ignored rather than rejected.
type chatRequest struct {
	Message   any `json:"message"`
	SessionID any `json:"session_id"`
}

func (h *chatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		httputil.RespondError(w, http.StatusBadRequest, "Payload must be JSON.")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Payload must be JSON.")
		return
	}
	message, _ := req.Message.(string)
	if strings.TrimSpace(message) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID, _ := req.SessionID.(string)

	stream, err := sse.NewWriter(w)
	if err != nil {
		logger.FromContext(r.Context()).Error("cannot stream chat response", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	err = h.relay.Handle(r.Context(), relay.Request{SessionID: sessionID, Message: message}, stream.Send)
	if err == nil || stream.Started() {
		// Outcome already delivered in-band.
		return
	}

	var relayErr *relay.Error
	if errors.As(err, &relayErr) && relayErr.Code == relay.ErrorInvalidInput {
		httputil.RespondError(w, http.StatusBadRequest, relayErr.Reason)
		return
	}
	logger.FromContext(r.Context()).Error("chat request failed before streaming", "error", err)
	httputil.RespondError(w, http.StatusInternalServerError, "Unable to start the chat session.")
}

type messageView struct {
	ID        int64        `json:"id"`
	Role      history.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

type historyResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []messageView `json:"messages"`
}

func (h *chatHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = history.ClampWindow(n)
	}

	session, msgs, err := h.relay.History(r.Context(), sessionID, limit)
	if errors.Is(err, history.ErrNotFound) {
		httputil.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to read chat history", "session_id", sessionID, "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Unable to read chat history.")
		return
	}

	resp := historyResponse{SessionID: session.ID, Messages: make([]messageView, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// isJSON matches application/json and application/*+json.
func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

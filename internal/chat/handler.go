package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const fallbackMessage = "Something went wrong processing your request. Please contact us on WhatsApp at +592 679 2338."

// Limiter guards the pipeline entry point per client identifier.
type Limiter interface {
	Allow(ctx context.Context, clientID string) bool
}

type Handler struct {
	svc     Service
	limiter Limiter
}

func NewHandler(svc Service, limiter Limiter) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

// HandleChat serves POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message     string `json:"message"`
		InputAsText string `json:"input_as_text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	text := strings.TrimSpace(payload.Message)
	if text == "" {
		text = strings.TrimSpace(payload.InputAsText)
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	clientID := clientIdentifier(r)
	if !h.limiter.Allow(r.Context(), clientID) {
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	res, err := h.svc.Process(r.Context(), ChatRequest{Text: text})
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("chat pipeline failed")
		switch {
		case errors.Is(err, ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, "Our assistant is taking too long to respond. Please try again in a moment.")
		default:
			writeError(w, http.StatusInternalServerError, fallbackMessage)
		}
		return
	}

	if res.ScreenFailure != nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": res.ScreenFailure})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

// clientIdentifier prefers the first X-Forwarded-For hop, falling back
// to the socket address.
func clientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

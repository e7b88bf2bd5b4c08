package messenger

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/impact-solutions/chat-gateway/internal/chat"
)

// ackMessage is the canned reply when the pipeline yields no text.
const ackMessage = "Thank you for your message. We will get back to you shortly."

type Handler struct {
	svc         chat.Service
	sender      Sender
	verifyToken string
}

func NewHandler(svc chat.Service, sender Sender, verifyToken string) *Handler {
	return &Handler{svc: svc, sender: sender, verifyToken: verifyToken}
}

// HandleVerify serves the GET webhook verification handshake.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type webhookPayload struct {
	// Standard page webhook shape.
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
	// Flat field/value shape (dashboard test events).
	Field string          `json:"field"`
	Value *messagingEvent `json:"value"`
}

// extract pulls the first usable sender/text pair from either payload
// shape.
func (p *webhookPayload) extract() (senderID, text string) {
	if p.Object == "page" {
		for _, entry := range p.Entry {
			for _, ev := range entry.Messaging {
				if ev.Sender.ID != "" && ev.Message.Text != "" {
					return ev.Sender.ID, ev.Message.Text
				}
			}
		}
	}
	if p.Field == "messages" && p.Value != nil {
		return p.Value.Sender.ID, p.Value.Message.Text
	}
	return "", ""
}

// HandleWebhook serves POST inbound Messenger events. Translates the event
// into the same pipeline request the chat endpoint uses and forwards
// the response text to the sender.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	senderID, text := payload.extract()
	if senderID == "" || text == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_message"})
		return
	}

	reply := ackMessage
	res, err := h.svc.Process(r.Context(), chat.ChatRequest{Text: text})
	switch {
	case err != nil:
		log.Error().Err(err).Str("sender_id", senderID).Msg("messenger: pipeline failed")
	case res.ScreenFailure == nil && res.Response != "":
		reply = res.Response
	}

	if err := h.sender.Send(r.Context(), senderID, reply); err != nil {
		log.Error().Err(err).Str("sender_id", senderID).Msg("messenger: send failed")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package messenger

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/api/messenger/webhook", h.HandleVerify)
	r.Post("/api/messenger/webhook", h.HandleWebhook)
}

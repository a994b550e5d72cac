package api

import (
	"net/http"
)

// ChatbotRequest is the body of POST /api/chatbot/query.
type ChatbotRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ChatbotQuery handles POST /api/chatbot/query.
func (h *Handler) ChatbotQuery(w http.ResponseWriter, r *http.Request) {
	var req ChatbotRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.bot.Answer(r.Context(), claims(r).UserID(), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

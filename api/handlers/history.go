package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/api"
)

// HistoryHandler serves GET /v1/history, a bridge extension returning the
// remote transcript of a conversation thread.
type HistoryHandler struct {
	engine CompletionEngine
	logger *zap.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(eng CompletionEngine, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		engine: eng,
		logger: logger.With(zap.String("component", "history_handler")),
	}
}

// Handle fetches the transcript of the thread named by the conversation
// query parameter, defaulting to the default thread.
func (h *HistoryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("conversation")

	conv, msgs, err := h.engine.History(r.Context(), name)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := api.HistoryResponse{
		Conversation: conv.Name,
		RemoteID:     conv.RemoteID,
		Model:        conv.Model,
		Messages:     make([]api.HistoryMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, api.HistoryMessage{
			Index:  m.Index,
			Sender: m.Sender,
			Text:   m.Text,
		})
	}

	WriteJSON(w, http.StatusOK, resp)
}

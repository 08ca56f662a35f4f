package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/api"
)

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	engine CompletionEngine
	logger *zap.Logger
}

// NewModelsHandler creates a model list handler.
func NewModelsHandler(eng CompletionEngine, logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{
		engine: eng,
		logger: logger.With(zap.String("component", "models_handler")),
	}
}

// HandleList returns the configured model allowlist.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()
	models := h.engine.Models()

	list := api.ModelList{
		Object: "list",
		Data:   make([]api.Model, 0, len(models)),
	}
	for _, id := range models {
		list.Data = append(list.Data, api.Model{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "anthropic",
		})
	}

	WriteJSON(w, http.StatusOK, list)
}

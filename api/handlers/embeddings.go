package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/adapter"
	"github.com/uibridge/uibridge/api"
	"github.com/uibridge/uibridge/types"
)

// EmbeddingsHandler serves POST /v1/embeddings with placeholder vectors.
// The remote app cannot embed; the endpoint exists so client frameworks
// that probe it keep working.
type EmbeddingsHandler struct {
	logger *zap.Logger
}

// NewEmbeddingsHandler creates the placeholder embeddings handler.
func NewEmbeddingsHandler(logger *zap.Logger) *EmbeddingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingsHandler{
		logger: logger.With(zap.String("component", "embeddings_handler")),
	}
}

// Handle returns the fixed placeholder vector for the request input.
func (h *EmbeddingsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req api.EmbeddingRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	input, ok := flattenInput(req.Input)
	if !ok {
		WriteError(w, types.NewError(types.ErrInvalidRequest,
			"input must be a string or an array of strings"), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, adapter.MockEmbedding(req.Model, input))
}

// flattenInput accepts the string and string-array input forms.
func flattenInput(input any) (string, bool) {
	switch v := input.(type) {
	case string:
		return v, true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "\n"), true
	default:
		return "", false
	}
}

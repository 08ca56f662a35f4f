package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/adapter"
	"github.com/uibridge/uibridge/api"
	"github.com/uibridge/uibridge/engine"
	"github.com/uibridge/uibridge/types"
)

// LegacyCompletionHandler serves the legacy POST /v1/completions.
type LegacyCompletionHandler struct {
	engine CompletionEngine
	logger *zap.Logger
}

// NewLegacyCompletionHandler creates a legacy completion handler.
func NewLegacyCompletionHandler(eng CompletionEngine, logger *zap.Logger) *LegacyCompletionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyCompletionHandler{
		engine: eng,
		logger: logger.With(zap.String("component", "completions_handler")),
	}
}

// Handle runs one exchange for a bare prompt. Older clients only read the
// first choice's text; finish_reason stays "length" as they expect.
func (h *LegacyCompletionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req api.CompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Prompt == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "prompt cannot be empty"), h.logger)
		return
	}

	start := time.Now()
	res, err := h.engine.Complete(r.Context(), engine.Params{
		Model:     req.Model,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("legacy completion",
		zap.String("model", res.Model),
		zap.Duration("duration", time.Since(start)),
	)

	WriteJSON(w, http.StatusOK, adapter.LegacyCompletion(res.Model, req.Prompt, res.Reply))
}

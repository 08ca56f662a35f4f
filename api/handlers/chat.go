package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/adapter"
	"github.com/uibridge/uibridge/api"
	"github.com/uibridge/uibridge/engine"
	"github.com/uibridge/uibridge/engine/conversation"
	"github.com/uibridge/uibridge/types"
)

// CompletionEngine is the slice of the engine the handlers use.
type CompletionEngine interface {
	Complete(ctx context.Context, p engine.Params) (*engine.Result, error)
	Models() []string
	History(ctx context.Context, name string) (conversation.Conversation, []conversation.Message, error)
}

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	engine         CompletionEngine
	streamInterval time.Duration
	logger         *zap.Logger
}

// NewChatHandler creates a chat completion handler.
func NewChatHandler(eng CompletionEngine, streamInterval time.Duration, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		engine:         eng,
		streamInterval: streamInterval,
		logger:         logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleCompletion runs one exchange and answers in the OpenAI chat
// completion format, streaming or not. The remote reply is always complete
// before the first byte goes out; streaming only imitates incremental
// delivery.
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Messages) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "messages cannot be empty"), h.logger)
		return
	}

	start := time.Now()
	res, err := h.engine.Complete(r.Context(), engine.Params{
		Conversation: req.Conversation,
		Model:        req.Model,
		Prompt:       adapter.FlattenMessages(req.Messages),
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("chat completion",
		zap.String("model", res.Model),
		zap.String("conversation", req.Conversation),
		zap.Bool("stream", req.Stream),
		zap.Bool("truncated", res.Truncated),
		zap.Duration("duration", time.Since(start)),
	)

	if req.Stream {
		h.stream(w, r, res)
		return
	}
	WriteJSON(w, http.StatusOK, adapter.Completion(res.Model, req.Messages, res.Reply))
}

// stream replays the finished reply as paced SSE chunks, one whitespace
// token each, then the [DONE] sentinel.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, res *engine.Result) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id := adapter.CompletionID()
	created := time.Now().Unix()
	chunks := adapter.Chunks(id, created, res.Model, res.Reply)

	for i, chunk := range chunks {
		if i > 0 && h.streamInterval > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.streamInterval):
			}
		}

		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("marshal chunk failed", zap.Error(err))
			return
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

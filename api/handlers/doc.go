/*
Package handlers implements the HTTP endpoints of the bridge.

# Overview

The handlers translate between the OpenAI wire format and the engine:
chat completions (with artificial SSE streaming), legacy text
completions, the model list, placeholder embeddings, thread history,
and health probes. Errors travel as the OpenAI error envelope so that
off-the-shelf clients surface them normally.

# Core types

  - ChatHandler              - POST /v1/chat/completions, sync and SSE
  - LegacyCompletionHandler  - POST /v1/completions
  - ModelsHandler            - GET /v1/models
  - EmbeddingsHandler        - POST /v1/embeddings (placeholder vectors)
  - HistoryHandler           - GET /v1/history
  - HealthHandler            - /health, /healthz, /ready, /version
  - CompletionEngine         - the slice of the engine the handlers use
  - ResponseWriter           - wraps http.ResponseWriter to capture status
*/
package handlers

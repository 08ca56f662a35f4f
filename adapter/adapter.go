package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uibridge/uibridge/api"
	"github.com/uibridge/uibridge/types"
)

// TruncationMarker is appended to output cut at the token budget.
const TruncationMarker = "[truncated]"

// FlattenMessages renders a role-tagged message list as the single prompt
// the remote composer accepts: one "role: content" line per message. The
// remote side has no concept of roles; the flattened text is all it sees.
func FlattenMessages(msgs []api.ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// PromptTokens counts whitespace tokens across all message contents.
func PromptTokens(msgs []api.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		n += types.TokenCount(m.Content)
	}
	return n
}

// Truncate cuts text to at most maxTokens whitespace tokens and appends the
// truncation marker. maxTokens <= 0 means unlimited. The budget is
// approximate by design; no tokenizer exists on this path.
func Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text, false
	}
	return strings.Join(words[:maxTokens], " ") + " " + TruncationMarker, true
}

// NormalizeCodeFences makes sure fenced code blocks are separated from
// surrounding prose by blank lines, which some chat clients require to
// render them.
func NormalizeCodeFences(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	afterClose := false
	for _, line := range lines {
		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")
		switch {
		case isFence && !inFence:
			if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
				out = append(out, "")
			}
			inFence = true
			afterClose = false
		case isFence && inFence:
			inFence = false
			afterClose = true
			out = append(out, line)
			continue
		case afterClose:
			if strings.TrimSpace(line) != "" {
				out = append(out, "")
			}
			afterClose = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// CompletionID returns a fresh chat-completion identifier.
func CompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// Completion shapes a finished reply as a non-streaming chat completion.
func Completion(model string, msgs []api.ChatMessage, reply string) *api.ChatCompletionResponse {
	return &api.ChatCompletionResponse{
		ID:      CompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.ChatChoice{{
			Index:        0,
			Message:      api.ChatMessage{Role: string(types.RoleAssistant), Content: reply},
			FinishReason: "stop",
		}},
		Usage: usageFor(PromptTokens(msgs), reply),
	}
}

// LegacyCompletion shapes a finished reply as a legacy text completion.
func LegacyCompletion(model, prompt, reply string) *api.CompletionResponse {
	return &api.CompletionResponse{
		ID:      CompletionID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.CompletionChoice{{
			Text:         reply,
			Index:        0,
			FinishReason: "length",
		}},
		Usage: usageFor(types.TokenCount(prompt), reply),
	}
}

func usageFor(promptTokens int, reply string) api.Usage {
	completionTokens := types.TokenCount(reply)
	return api.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// Chunks splits a finished reply into the artificial streaming sequence:
// one delta per whitespace token, each with a trailing space, then a final
// empty delta carrying finish_reason "stop". The remote reply is complete
// before the first chunk goes out; the stream only imitates incremental
// delivery for clients that insist on it.
func Chunks(id string, created int64, model, reply string) []api.ChatCompletionChunk {
	words := strings.Fields(reply)
	chunks := make([]api.ChatCompletionChunk, 0, len(words)+1)

	for i, w := range words {
		delta := api.ChunkDelta{Content: w + " "}
		if i == 0 {
			delta.Role = string(types.RoleAssistant)
		}
		chunks = append(chunks, api.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []api.ChunkChoice{{Index: 0, Delta: delta, FinishReason: nil}},
		})
	}

	stop := "stop"
	chunks = append(chunks, api.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []api.ChunkChoice{{Index: 0, Delta: api.ChunkDelta{}, FinishReason: &stop}},
	})

	return chunks
}

// MockEmbedding returns the fixed placeholder vector served by the
// embeddings endpoint. The remote app cannot embed; the endpoint exists so
// client frameworks that probe it keep working.
func MockEmbedding(model string, input string) *api.EmbeddingResponse {
	vec := make([]float64, 1536)
	for i := range vec {
		vec[i] = 0.1
	}
	tokens := types.TokenCount(input)
	return &api.EmbeddingResponse{
		Object: "list",
		Data: []api.Embedding{{
			Object:    "embedding",
			Index:     0,
			Embedding: vec,
		}},
		Model: model,
		Usage: api.Usage{PromptTokens: tokens, TotalTokens: tokens},
	}
}

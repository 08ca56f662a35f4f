// Package api defines the OpenAI-compatible wire types the bridge speaks on
// its HTTP surface: chat completions (plain and chunked), legacy text
// completions, model listings, embeddings, and the error envelope.
package api

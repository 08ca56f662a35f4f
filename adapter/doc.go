// Package adapter translates between the OpenAI wire shapes and the plain
// prompt/reply exchange the remote app supports: role-tagged message lists
// are flattened into a single prompt, replies are shaped into completion
// objects with whitespace-token usage, and streaming responses are
// synthesized by re-chunking the finished reply word by word.
package adapter

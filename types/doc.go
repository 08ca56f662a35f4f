// Package types defines the shared vocabulary of the bridge: chat roles and
// messages, the structured error taxonomy, and the whitespace token counter
// used for usage accounting and output truncation.
package types

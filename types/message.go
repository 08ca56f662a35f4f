package types

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenCount returns the whitespace-token count of s. The remote surface
// gives no access to a real tokenizer, so usage accounting and truncation
// are deliberately approximate: a token is a strings.Fields word.
func TokenCount(s string) int {
	return len(strings.Fields(s))
}

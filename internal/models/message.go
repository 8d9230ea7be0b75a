// ABOUTME: ChatMessage is a single entry in a per-user conversation history
// ABOUTME: Role values mirror the chat-completion API
package models

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation, ordered by recency in the
// history store. Histories are owned by a (guild, user) pair.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

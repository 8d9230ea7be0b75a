// ABOUTME: PendingToolConfirmation and escalation types for the ticket handshake
// ABOUTME: A pending record lives until resolved by its owner or expired by TTL
package models

import "time"

// PendingToolConfirmation is created when the tool-check stage proposes an
// escalation. Only the originating UserID may resolve it.
type PendingToolConfirmation struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"category_id"`
	UserMessage string    `json:"user_message"`
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	UserID      string    `json:"user_id"`
	ToolMessage string    `json:"tool_message"`
	CreatedAt   time.Time `json:"created_at"`
}

// EscalationCategory is a ticket category the model may propose.
type EscalationCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EscalationResult reports the outcome of a delegated ticket creation.
type EscalationResult struct {
	Success     bool   `json:"success"`
	ResourceRef string `json:"resource_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

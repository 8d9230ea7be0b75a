// ABOUTME: Collaborator contracts consumed by the orchestration core
// ABOUTME: Persistence, ticketing and configuration all live behind these interfaces
package storage

import (
	"context"

	"ragdesk/internal/models"
)

// HistoryStore keeps per-conversation message history. Conversation keys are
// "<guildID>:<userID>". The store owns trimming policy.
type HistoryStore interface {
	AddMessage(conversationKey, role, content string) error
	History(conversationKey string) ([]models.ChatMessage, error)
	Trim(conversationKey string, maxLen int) error
	Clear(conversationKey string, keepSystem bool) error
}

// VectorIndex answers similarity queries over stored chunk embeddings.
// Scope keys isolate one guild's knowledge base from another's.
type VectorIndex interface {
	HasData(scopeKey string) bool
	Search(scopeKey string, queryVector []float64, k int) ([]models.RankedChunk, error)
}

// CategoryProvider lists the escalation categories enabled for a guild.
type CategoryProvider interface {
	ListEnabled(scopeKey string) ([]models.EscalationCategory, error)
}

// EscalationExecutor delegates ticket creation to the external ticket system.
type EscalationExecutor interface {
	Create(ctx context.Context, scopeKey, categoryID, initialMessage string) (*models.EscalationResult, error)
}

// ConfigProvider resolves the chatbot configuration for a channel. A nil
// config with nil error means the channel is not configured.
type ConfigProvider interface {
	ByChannel(channelID string) (*models.ChatbotConfig, error)
}

// ABOUTME: In-process implementations of the collaborator contracts
// ABOUTME: Mutex-guarded maps with cosine similarity ranking; used by CLI and tests
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragdesk/internal/models"
)

// HistoryStore is an in-memory conversation history keyed by conversation.
type HistoryStore struct {
	mu       sync.Mutex
	messages map[string][]models.ChatMessage
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{messages: make(map[string][]models.ChatMessage)}
}

// AddMessage appends a message to the conversation.
func (s *HistoryStore) AddMessage(conversationKey, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationKey] = append(s.messages[conversationKey], models.ChatMessage{
		Role:    role,
		Content: content,
	})
	return nil
}

// History returns a copy of the conversation, oldest first.
func (s *HistoryStore) History(conversationKey string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationKey]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Trim drops the oldest messages beyond maxLen, always keeping any leading
// system message.
func (s *HistoryStore) Trim(conversationKey string, maxLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationKey]
	if maxLen <= 0 || len(msgs) <= maxLen {
		return nil
	}
	var system []models.ChatMessage
	if len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
		system = msgs[:1]
		msgs = msgs[1:]
		maxLen--
	}
	if maxLen < 0 {
		maxLen = 0
	}
	if len(msgs) > maxLen {
		msgs = msgs[len(msgs)-maxLen:]
	}
	s.messages[conversationKey] = append(append([]models.ChatMessage{}, system...), msgs...)
	return nil
}

// Clear removes the conversation, optionally keeping its system message.
func (s *HistoryStore) Clear(conversationKey string, keepSystem bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationKey]
	if keepSystem && len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
		s.messages[conversationKey] = msgs[:1]
		return nil
	}
	delete(s.messages, conversationKey)
	return nil
}

// VectorIndex is an in-memory chunk index with cosine similarity search.
type VectorIndex struct {
	mu     sync.RWMutex
	chunks map[string][]models.DocumentChunk
}

// NewVectorIndex creates an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{chunks: make(map[string][]models.DocumentChunk)}
}

// Add stores an embedded chunk under the scope. Chunks without embeddings
// are ignored.
func (idx *VectorIndex) Add(scopeKey string, chunk models.DocumentChunk) {
	if len(chunk.Embedding) == 0 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.chunks[scopeKey] = append(idx.chunks[scopeKey], chunk)
}

// HasData reports whether the scope has any indexed chunks.
func (idx *VectorIndex) HasData(scopeKey string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks[scopeKey]) > 0
}

// Search returns the k most similar chunks by cosine similarity.
func (idx *VectorIndex) Search(scopeKey string, queryVector []float64, k int) ([]models.RankedChunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []models.RankedChunk
	for _, chunk := range idx.chunks[scopeKey] {
		results = append(results, models.RankedChunk{
			Chunk: chunk,
			Score: CosineSimilarity(queryVector, chunk.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths score zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CategoryProvider serves a static category list per scope.
type CategoryProvider struct {
	mu         sync.RWMutex
	categories map[string][]models.EscalationCategory
}

// NewCategoryProvider creates an empty provider.
func NewCategoryProvider() *CategoryProvider {
	return &CategoryProvider{categories: make(map[string][]models.EscalationCategory)}
}

// SetCategories replaces the enabled categories for a scope.
func (p *CategoryProvider) SetCategories(scopeKey string, cats []models.EscalationCategory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.categories[scopeKey] = cats
}

// ListEnabled returns the enabled categories for the scope.
func (p *CategoryProvider) ListEnabled(scopeKey string) ([]models.EscalationCategory, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.EscalationCategory, len(p.categories[scopeKey]))
	copy(out, p.categories[scopeKey])
	return out, nil
}

// ConfigProvider serves chatbot configs keyed by channel.
type ConfigProvider struct {
	mu      sync.RWMutex
	configs map[string]models.ChatbotConfig
}

// NewConfigProvider creates an empty provider.
func NewConfigProvider() *ConfigProvider {
	return &ConfigProvider{configs: make(map[string]models.ChatbotConfig)}
}

// SetConfig registers a channel configuration.
func (p *ConfigProvider) SetConfig(cfg models.ChatbotConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[cfg.ChannelID] = cfg
}

// ByChannel returns the config for the channel, or nil when unconfigured.
func (p *ConfigProvider) ByChannel(channelID string) (*models.ChatbotConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.configs[channelID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// CountingExecutor is a local EscalationExecutor that numbers tickets.
// Useful for the CLI and as a stand-in when no ticket system is wired.
type CountingExecutor struct {
	mu      sync.Mutex
	counter int
}

// NewCountingExecutor creates an executor starting at ticket 1.
func NewCountingExecutor() *CountingExecutor {
	return &CountingExecutor{}
}

// Create allocates the next ticket reference.
func (e *CountingExecutor) Create(_ context.Context, scopeKey, _, _ string) (*models.EscalationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter++
	return &models.EscalationResult{
		Success:     true,
		ResourceRef: fmt.Sprintf("ticket-%s-%d", scopeKey, e.counter),
	}, nil
}

// ABOUTME: Charm-KV-backed HistoryStore and VectorIndex adapters
// ABOUTME: Histories are JSON message lists; chunks are scanned for cosine search
package charmkv

import (
	"errors"
	"fmt"
	"sort"

	"ragdesk/internal/models"
	"ragdesk/internal/storage/memory"
)

// jsonKV is the slice of Client the adapters use.
type jsonKV interface {
	SetJSON(key string, value interface{}) error
	GetJSON(key string, dest interface{}) error
	Delete(key string) error
	ListKeys(prefix string) ([]string, error)
}

// HistoryStore keeps conversation history in charm KV, one JSON-encoded
// message list per conversation.
type HistoryStore struct {
	client jsonKV
}

// NewHistoryStore creates a history store over the charm client.
func NewHistoryStore(client *Client) *HistoryStore {
	return &HistoryStore{client: client}
}

// AddMessage appends a message to the stored conversation.
func (s *HistoryStore) AddMessage(conversationKey, role, content string) error {
	msgs, err := s.History(conversationKey)
	if err != nil {
		return err
	}
	msgs = append(msgs, models.ChatMessage{Role: role, Content: content})
	return s.client.SetJSON(HistoryKey(conversationKey), msgs)
}

// History returns the stored conversation, oldest first. A missing key is an
// empty conversation, not an error; a failed read is, so a transient fault
// never masquerades as an empty history.
func (s *HistoryStore) History(conversationKey string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	if err := s.client.GetJSON(HistoryKey(conversationKey), &msgs); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading history %s: %w", conversationKey, err)
	}
	return msgs, nil
}

// Trim drops the oldest messages beyond maxLen, keeping a leading system
// message when present.
func (s *HistoryStore) Trim(conversationKey string, maxLen int) error {
	msgs, err := s.History(conversationKey)
	if err != nil {
		return err
	}
	if maxLen <= 0 || len(msgs) <= maxLen {
		return nil
	}
	var system []models.ChatMessage
	if msgs[0].Role == models.RoleSystem {
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
	return s.client.SetJSON(HistoryKey(conversationKey), append(append([]models.ChatMessage{}, system...), msgs...))
}

// Clear removes the conversation, optionally keeping its system message.
func (s *HistoryStore) Clear(conversationKey string, keepSystem bool) error {
	if keepSystem {
		msgs, err := s.History(conversationKey)
		if err != nil {
			return err
		}
		if len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
			return s.client.SetJSON(HistoryKey(conversationKey), msgs[:1])
		}
	}
	return s.client.Delete(HistoryKey(conversationKey))
}

// VectorIndex stores embedded chunks in charm KV and answers similarity
// queries by scanning the scope's keys.
type VectorIndex struct {
	client jsonKV
}

// NewVectorIndex creates a vector index over the charm client.
func NewVectorIndex(client *Client) *VectorIndex {
	return &VectorIndex{client: client}
}

// Add stores an embedded chunk under the scope.
func (idx *VectorIndex) Add(scopeKey string, chunk models.DocumentChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunk.ID)
	}
	return idx.client.SetJSON(ChunkKey(scopeKey, chunk.ID), chunk)
}

// HasData reports whether the scope has any stored chunks.
func (idx *VectorIndex) HasData(scopeKey string) bool {
	keys, err := idx.client.ListKeys(ChunkScopePrefix(scopeKey))
	return err == nil && len(keys) > 0
}

// Search returns the k most similar chunks by cosine similarity.
func (idx *VectorIndex) Search(scopeKey string, queryVector []float64, k int) ([]models.RankedChunk, error) {
	keys, err := idx.client.ListKeys(ChunkScopePrefix(scopeKey))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk keys: %w", err)
	}

	var results []models.RankedChunk
	for _, key := range keys {
		var chunk models.DocumentChunk
		if err := idx.client.GetJSON(key, &chunk); err != nil {
			continue
		}
		results = append(results, models.RankedChunk{
			Chunk: chunk,
			Score: memory.CosineSimilarity(queryVector, chunk.Embedding),
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

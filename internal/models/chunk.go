// ABOUTME: DocumentChunk represents a bounded slice of a source document
// ABOUTME: Carries ingestion metadata and the embedding vector once generated
package models

import "time"

// ChunkMetadata describes where a chunk came from and how it was cut.
type ChunkMetadata struct {
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tags        []string  `json:"tags,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	WordCount   int       `json:"word_count"`
	CharCount   int       `json:"char_count"`
	// Hash is set only when deduplication was requested for the document.
	Hash string `json:"hash,omitempty"`
}

// DocumentChunk is a slice of a source document prepared for embedding
// and retrieval. Immutable once embedded.
type DocumentChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float64     `json:"embedding,omitempty"`
}

// RankedChunk is a retrieval result with its similarity score.
type RankedChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

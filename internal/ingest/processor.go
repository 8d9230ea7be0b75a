// ABOUTME: Document processor driving chunking, deduplication and batched embedding
// ABOUTME: Recovers per-chunk embedding failures locally; a failed chunk is skipped, not fatal
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragdesk/internal/models"
)

// Defaults for document processing.
const (
	DefaultChunkSize     = 500
	DefaultChunkOverlap  = 50
	DefaultMaxConcurrent = 5
)

// ChunkOverlapNone requests zero overlap between adjacent chunks. A zero
// ChunkOverlap takes DefaultChunkOverlap instead.
const ChunkOverlapNone = -1

// supportedExtensions lists the document formats the processor can read.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Embedder generates embedding vectors for chunks and queries.
type Embedder interface {
	Create(ctx context.Context, text string) ([]float64, error)
	ExpectedDimensions(ctx context.Context) int
}

// Options configures a single processing run. Zero values take defaults;
// pass ChunkOverlapNone for deliberately overlap-free chunks.
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxConcurrent int
	Tags          []string
	// Deduplicate drops chunks whose content hash was already seen within
	// the same document. Hashes are recorded in chunk metadata.
	Deduplicate bool
}

// Processor turns raw documents into embedded chunks. Query-time encoding
// uses the same embedder instance so dimensionality stays consistent between
// indexing and querying.
type Processor struct {
	embedder Embedder
}

// NewProcessor creates a processor over the given embedder.
func NewProcessor(embedder Embedder) *Processor {
	return &Processor{embedder: embedder}
}

// ProcessDocument reads a file and returns its embedded chunks.
func (p *Processor) ProcessDocument(ctx context.Context, path string, opts Options) ([]models.DocumentChunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}

	return p.ProcessText(ctx, path, string(data), opts)
}

// ProcessText chunks and embeds an in-memory source.
func (p *Processor) ProcessText(ctx context.Context, source, text string, opts Options) ([]models.DocumentChunk, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	switch {
	case opts.ChunkOverlap == 0:
		opts.ChunkOverlap = DefaultChunkOverlap
	case opts.ChunkOverlap < 0:
		opts.ChunkOverlap = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	parts := NewSplitter(opts.ChunkSize, opts.ChunkOverlap).Split(text)
	if len(parts) == 0 {
		return nil, nil
	}

	now := time.Now()
	seen := make(map[string]bool)
	chunks := make([]models.DocumentChunk, 0, len(parts))

	for _, content := range parts {
		meta := models.ChunkMetadata{
			Source:    source,
			CreatedAt: now,
			UpdatedAt: now,
			Tags:      opts.Tags,
			WordCount: len(strings.Fields(content)),
			CharCount: len(content),
		}
		if opts.Deduplicate {
			sum := sha256.Sum256([]byte(content))
			hash := hex.EncodeToString(sum[:])
			if seen[hash] {
				continue
			}
			seen[hash] = true
			meta.Hash = hash
		}
		chunks = append(chunks, models.DocumentChunk{
			ID:       "chunk_" + uuid.New().String(),
			Content:  content,
			Metadata: meta,
		})
	}

	for i := range chunks {
		chunks[i].Metadata.ChunkIndex = i
		chunks[i].Metadata.TotalChunks = len(chunks)
	}

	return p.embedChunks(ctx, chunks, opts.MaxConcurrent)
}

// QueryEmbedding encodes a retrieval query with the indexing embedder.
func (p *Processor) QueryEmbedding(ctx context.Context, text string) ([]float64, error) {
	return p.embedder.Create(ctx, text)
}

// embedChunks generates embeddings in batches of at most maxConcurrent.
// Chunks within a batch embed in parallel; a batch fully settles before the
// next starts. A chunk whose embedding fails is logged and dropped; a chunk
// whose vector length disagrees with the model's expected dimensionality is
// logged and kept.
func (p *Processor) embedChunks(ctx context.Context, chunks []models.DocumentChunk, maxConcurrent int) ([]models.DocumentChunk, error) {
	expected := p.embedder.ExpectedDimensions(ctx)
	failed := make([]bool, len(chunks))

	for start := 0; start < len(chunks); start += maxConcurrent {
		end := start + maxConcurrent
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := p.embedder.Create(ctx, chunks[i].Content)
				if err != nil {
					log.Printf("Warning: embedding chunk %d of %s failed, skipping: %v", i, chunks[i].Metadata.Source, err)
					failed[i] = true
					return
				}
				if len(vec) != expected {
					log.Printf("Warning: chunk %d of %s has dimension %d, expected %d", i, chunks[i].Metadata.Source, len(vec), expected)
				}
				chunks[i].Embedding = vec
			}(i)
		}
		wg.Wait()
	}

	out := chunks[:0]
	for i, chunk := range chunks {
		if !failed[i] {
			out = append(out, chunk)
		}
	}
	return out, nil
}

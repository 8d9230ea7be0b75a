// ABOUTME: Embedding generator with fixed-delay retries and dimension detection
// ABOUTME: Detects vector dimensionality lazily and caches it per instance
package embedding

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragdesk/internal/models"
)

const (
	// DefaultModel is the default embedding model.
	DefaultModel = string(openai.SmallEmbedding3)
	// FallbackDimensions keeps downstream indexing operational when
	// dimension detection fails.
	FallbackDimensions = 384
	// probeText is embedded once to detect the model's vector length.
	probeText = "dimension probe"
)

// embeddingAPI is the slice of the OpenAI client the generator needs.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config holds generator configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		Model:      DefaultModel,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Generator produces embedding vectors. All vectors produced by one instance
// share the same length; the length is detected lazily and cached.
type Generator struct {
	api        embeddingAPI
	model      openai.EmbeddingModel
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration

	mu         sync.Mutex
	dimensions int
}

// New creates a generator from configuration.
func New(cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	return NewWithAPI(openai.NewClientWithConfig(conf), cfg)
}

// NewWithAPI creates a generator over an existing API client. Used by tests
// to substitute a stub.
func NewWithAPI(api embeddingAPI, cfg Config) *Generator {
	return &Generator{
		api:        api,
		model:      openai.EmbeddingModel(cfg.Model),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
	}
}

// Create generates an embedding vector for the text, retrying with a fixed
// delay. Exhausting retries surfaces models.ErrEmbeddingFailure wrapping the
// last error.
func (g *Generator) Create(ctx context.Context, text string) ([]float64, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(g.retryDelay)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.api.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: g.model,
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("attempt %d: no embeddings returned", attempt+1)
			continue
		}

		embedding32 := resp.Data[0].Embedding
		embedding64 := make([]float64, len(embedding32))
		for i, v := range embedding32 {
			embedding64[i] = float64(v)
		}
		return embedding64, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", models.ErrEmbeddingFailure, g.maxRetries+1, lastErr)
}

// ExpectedDimensions returns the vector length for this generator's model.
// The first call performs one real embedding to detect it; the result is
// cached. Detection failure logs a warning and caches FallbackDimensions so
// downstream indexing keeps working in degraded mode.
func (g *Generator) ExpectedDimensions(ctx context.Context) int {
	g.mu.Lock()
	if g.dimensions > 0 {
		dims := g.dimensions
		g.mu.Unlock()
		return dims
	}
	g.mu.Unlock()

	// Probe outside the lock; Create may block on the network.
	vec, err := g.Create(ctx, probeText)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dimensions > 0 {
		return g.dimensions
	}
	if err != nil || len(vec) == 0 {
		log.Printf("Warning: embedding dimension detection failed, defaulting to %d: %v", FallbackDimensions, err)
		g.dimensions = FallbackDimensions
		return g.dimensions
	}
	g.dimensions = len(vec)
	return g.dimensions
}

// ResetDimensionCache clears the cached dimensionality. Required when the
// underlying model changes.
func (g *Generator) ResetDimensionCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dimensions = 0
}

// ABOUTME: Centralized configuration for the chat orchestration engine
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the engine.
type Config struct {
	// OpenAI settings
	OpenAIKey      string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	// Ingestion settings
	ChunkSize           int
	ChunkOverlap        int
	MaxConcurrentEmbeds int

	// Chat settings
	SegmentLimit    int
	MaxHistory      int
	ConfirmationTTL time.Duration

	// Charm settings (persistent storage backend)
	CharmHost   string
	CharmDBName string
	AutoSync    bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		ChatModel:           getEnv("RAGDESK_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:      getEnv("RAGDESK_EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:             getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		MaxRetries:          getEnvInt("OPENAI_MAX_RETRIES", 3),
		RetryDelay:          getEnvDuration("OPENAI_RETRY_DELAY", 2*time.Second),
		ChunkSize:           getEnvInt("RAGDESK_CHUNK_SIZE", 500),
		ChunkOverlap:        getEnvInt("RAGDESK_CHUNK_OVERLAP", 50),
		MaxConcurrentEmbeds: getEnvInt("RAGDESK_MAX_CONCURRENT_EMBEDS", 5),
		SegmentLimit:        getEnvInt("RAGDESK_SEGMENT_LIMIT", 2000),
		MaxHistory:          getEnvInt("RAGDESK_MAX_HISTORY", 20),
		ConfirmationTTL:     getEnvDuration("RAGDESK_CONFIRMATION_TTL", 5*time.Minute),
		CharmHost:           getEnv("CHARM_HOST", "cloud.charm.sh"),
		CharmDBName:         getEnv("CHARM_DB", "ragdesk"),
		AutoSync:            getEnvBool("CHARM_AUTO_SYNC", true),
	}

	return cfg, cfg.Validate()
}

// Validate rejects values outside their workable ranges.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("RAGDESK_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("RAGDESK_CHUNK_OVERLAP must be 0 to chunk size, got %d", c.ChunkOverlap)
	}
	if c.MaxConcurrentEmbeds <= 0 {
		return fmt.Errorf("RAGDESK_MAX_CONCURRENT_EMBEDS must be positive, got %d", c.MaxConcurrentEmbeds)
	}
	if c.SegmentLimit <= 0 {
		return fmt.Errorf("RAGDESK_SEGMENT_LIMIT must be positive, got %d", c.SegmentLimit)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

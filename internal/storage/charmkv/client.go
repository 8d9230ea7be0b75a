// ABOUTME: Charm KV client wrapper for cloud-synced chat storage
// ABOUTME: Backs the persistent HistoryStore and VectorIndex adapters
package charmkv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/charm/kv"
	badger "github.com/dgraph-io/badger/v3"
)

// ErrKeyNotFound marks a lookup for a key that has never been stored, as
// opposed to a read that actually failed.
var ErrKeyNotFound = errors.New("key not found")

// Key prefixes for stored entity types.
const (
	HistoryPrefix = "history:"
	ChunkPrefix   = "chunk:"
)

// Config holds charm client configuration.
type Config struct {
	Host     string
	DBName   string
	AutoSync bool
}

// DefaultConfig returns the default charm configuration.
func DefaultConfig() Config {
	host := os.Getenv("CHARM_HOST")
	if host == "" {
		host = "cloud.charm.sh"
	}
	return Config{
		Host:     host,
		DBName:   "ragdesk",
		AutoSync: true,
	}
}

// Client wraps charm KV for chat storage operations.
type Client struct {
	kv     *kv.KV
	config Config
	mu     sync.Mutex
}

// NewClient opens the charm KV database.
func NewClient(cfg Config) (*Client, error) {
	os.Setenv("CHARM_HOST", cfg.Host)

	db, err := kv.OpenWithDefaults(cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	c := &Client{kv: db, config: cfg}
	if cfg.AutoSync {
		_ = db.Sync()
	}
	return c, nil
}

// Close closes the KV database.
func (c *Client) Close() error {
	if c.kv != nil {
		err := c.kv.Close()
		c.kv = nil
		return err
	}
	return nil
}

func (c *Client) syncIfEnabled() {
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
}

// SetJSON marshals and stores a value as JSON.
func (c *Client) SetJSON(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Set([]byte(key), data); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// GetJSON retrieves and unmarshals a JSON value. A key that was never stored
// yields ErrKeyNotFound; any other failure is a real read error.
func (c *Client) GetJSON(key string, dest interface{}) error {
	c.mu.Lock()
	data, err := c.kv.Get([]byte(key))
	c.mu.Unlock()
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if data == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return json.Unmarshal(data, dest)
}

// Delete removes a key.
func (c *Client) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// ListKeys returns all keys with the given prefix.
func (c *Client) ListKeys(prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var result []string
	for _, key := range keys {
		if strings.HasPrefix(string(key), prefix) {
			result = append(result, string(key))
		}
	}
	return result, nil
}

// HistoryKey generates the key for a conversation history.
func HistoryKey(conversationKey string) string {
	return HistoryPrefix + conversationKey
}

// ChunkKey generates the key for a stored chunk within a scope.
func ChunkKey(scopeKey, chunkID string) string {
	return ChunkPrefix + scopeKey + ":" + chunkID
}

// ChunkScopePrefix generates the listing prefix for a scope's chunks.
func ChunkScopePrefix(scopeKey string) string {
	return ChunkPrefix + scopeKey + ":"
}

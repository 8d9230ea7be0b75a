// ABOUTME: Shared engine wiring for CLI commands
// ABOUTME: Builds the processor, orchestration service and storage backends
package commands

import (
	"fmt"
	"log"
	"os"
	"strings"

	"ragdesk/internal/chat"
	"ragdesk/internal/config"
	"ragdesk/internal/embedding"
	"ragdesk/internal/ingest"
	"ragdesk/internal/llm"
	"ragdesk/internal/models"
	"ragdesk/internal/storage"
	"ragdesk/internal/storage/charmkv"
	"ragdesk/internal/storage/memory"
)

// engine bundles the wired components a command needs.
type engine struct {
	cfg       *config.Config
	service   *chat.Service
	processor *ingest.Processor
	index     storage.VectorIndex
	configs   storage.ConfigProvider
	addChunk  func(scopeKey string, chunk models.DocumentChunk) error
	close     func()
}

// buildEngine wires the engine. With useCharm, history and chunks live in
// charm KV; otherwise everything is in-process and lost on exit.
func buildEngine(useCharm bool) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	generator := embedding.New(embedding.Config{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.EmbeddingModel,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
	})
	processor := ingest.NewProcessor(generator)

	llmClient := llm.New(llm.Config{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.ChatModel,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryDelay,
		Timeout:    cfg.Timeout,
	})

	eng := &engine{cfg: cfg, processor: processor, close: func() {}}

	var history storage.HistoryStore
	if useCharm {
		client, err := charmkv.NewClient(charmkv.Config{
			Host:     cfg.CharmHost,
			DBName:   cfg.CharmDBName,
			AutoSync: cfg.AutoSync,
		})
		if err != nil {
			return nil, fmt.Errorf("opening charm storage: %w", err)
		}
		history = charmkv.NewHistoryStore(client)
		index := charmkv.NewVectorIndex(client)
		eng.index = index
		eng.addChunk = index.Add
		eng.close = func() { _ = client.Close() }
	} else {
		history = memory.NewHistoryStore()
		index := memory.NewVectorIndex()
		eng.index = index
		eng.addChunk = func(scopeKey string, chunk models.DocumentChunk) error {
			index.Add(scopeKey, chunk)
			return nil
		}
	}

	categories := memory.NewCategoryProvider()
	categories.SetCategories(localGuildID(), parseCategories(os.Getenv("RAGDESK_CATEGORIES")))

	configs := memory.NewConfigProvider()
	configs.SetConfig(localChatbotConfig(cfg))
	eng.configs = configs

	eng.service = chat.NewService(chat.Deps{
		LLM:        llmClient,
		Embedder:   processor,
		History:    history,
		Index:      eng.index,
		Categories: categories,
		Escalation: memory.NewCountingExecutor(),

		MaxHistory:      cfg.MaxHistory,
		SegmentLimit:    cfg.SegmentLimit,
		ConfirmationTTL: cfg.ConfirmationTTL,
	})

	return eng, nil
}

// localGuildID is the scope used when running outside a real transport.
func localGuildID() string {
	if v := os.Getenv("RAGDESK_GUILD_ID"); v != "" {
		return v
	}
	return "local"
}

// localChannelID is the channel key the CLI chats in.
func localChannelID() string {
	if v := os.Getenv("RAGDESK_CHANNEL_ID"); v != "" {
		return v
	}
	return "cli"
}

// localChatbotConfig builds the CLI's chatbot configuration from env.
func localChatbotConfig(cfg *config.Config) models.ChatbotConfig {
	name := os.Getenv("RAGDESK_BOT_NAME")
	if name == "" {
		name = "Ragdesk"
	}
	return models.ChatbotConfig{
		APIKey:       cfg.OpenAIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		ModelName:    cfg.ChatModel,
		ChatbotName:  name,
		ResponseType: os.Getenv("RAGDESK_RESPONSE_TYPE"),
		GuildID:      localGuildID(),
		ChannelID:    localChannelID(),
	}
}

// parseCategories parses "id:name,id:name" into escalation categories.
func parseCategories(raw string) []models.EscalationCategory {
	var out []models.EscalationCategory
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, name, found := strings.Cut(pair, ":")
		if !found {
			log.Printf("Warning: skipping malformed category %q (want id:name)", pair)
			continue
		}
		out = append(out, models.EscalationCategory{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)})
	}
	return out
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

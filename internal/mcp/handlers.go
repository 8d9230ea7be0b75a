// ABOUTME: MCP tool handler implementations for the chat engine
// ABOUTME: Typed chat failures become tool errors, never transport-level errors
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"ragdesk/internal/chat"
	"ragdesk/internal/ingest"
	"ragdesk/internal/models"
	"ragdesk/internal/storage"
)

// AddChunkFunc stores one embedded chunk in a guild's knowledge base.
type AddChunkFunc func(scopeKey string, chunk models.DocumentChunk) error

// Handlers contains the handler functions for all MCP tools.
type Handlers struct {
	service   *chat.Service
	processor *ingest.Processor
	index     storage.VectorIndex
	configs   storage.ConfigProvider
	addChunk  AddChunkFunc
}

// SendMessage handles the send_message tool.
func (h *Handlers) SendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := request.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError("channel_id argument is required and must be a string"), nil
	}
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}

	cfg, err := h.configs.ByChannel(channelID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("config lookup failed: %v", err)), nil
	}
	if cfg == nil {
		return mcp.NewToolResultError(fmt.Sprintf("channel %s has no chatbot configured", channelID)), nil
	}

	resp, err := h.service.HandleMessage(ctx, *cfg, userID, message)
	if err != nil {
		if errors.Is(err, models.ErrLLMUnavailable) || errors.Is(err, models.ErrLLMTimeout) {
			return mcp.NewToolResultError("The assistant is temporarily unavailable. Please try again shortly."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("message handling failed: %v", err)), nil
	}

	return marshalResult(resp)
}

// ResolveConfirmation handles the resolve_confirmation tool.
func (h *Handlers) ResolveConfirmation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	confirmationID, err := request.RequireString("confirmation_id")
	if err != nil {
		return mcp.NewToolResultError("confirmation_id argument is required and must be a string"), nil
	}
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}
	confirmed := request.GetBool("confirmed", false)

	result, err := h.service.Resolve(ctx, confirmationID, confirmed, userID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConfirmationExpired):
			return mcp.NewToolResultError("This confirmation has expired. Please send your request again."), nil
		case errors.Is(err, models.ErrConfirmationForbidden):
			return mcp.NewToolResultError("Only the user who made the request can confirm it."), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("resolution failed: %v", err)), nil
		}
	}

	return marshalResult(result)
}

// IngestDocument handles the ingest_document tool.
func (h *Handlers) IngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guildID, err := request.RequireString("guild_id")
	if err != nil {
		return mcp.NewToolResultError("guild_id argument is required and must be a string"), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required and must be a string"), nil
	}
	deduplicate := request.GetBool("deduplicate", true)

	chunks, err := h.processor.ProcessDocument(ctx, path, ingest.Options{Deduplicate: deduplicate})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnsupportedFormat):
			return mcp.NewToolResultError(fmt.Sprintf("unsupported document format: %s", path)), nil
		case errors.Is(err, models.ErrNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("document not found: %s", path)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("document processing failed: %v", err)), nil
		}
	}

	indexed := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		if err := h.addChunk(guildID, chunk); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("indexing chunk failed: %v", err)), nil
		}
		indexed++
	}

	return marshalResult(map[string]interface{}{
		"source":         path,
		"chunks_total":   len(chunks),
		"chunks_indexed": indexed,
	})
}

// SearchKnowledge handles the search_knowledge tool.
func (h *Handlers) SearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guildID, err := request.RequireString("guild_id")
	if err != nil {
		return mcp.NewToolResultError("guild_id argument is required and must be a string"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	maxResults := request.GetInt("max_results", 5)

	if !h.index.HasData(guildID) {
		return marshalResult([]models.RankedChunk{})
	}

	vec, err := h.processor.QueryEmbedding(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query embedding failed: %v", err)), nil
	}

	results, err := h.index.Search(guildID, vec, maxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("knowledge search failed: %v", err)), nil
	}

	return marshalResult(results)
}

// marshalResult renders a value as a JSON tool result.
func marshalResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

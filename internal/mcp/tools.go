// ABOUTME: MCP tool definitions and registration for the chat engine
// ABOUTME: Exposes send_message, resolve_confirmation, ingest_document and search_knowledge
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"ragdesk/internal/chat"
	"ragdesk/internal/ingest"
	"ragdesk/internal/storage"
)

// RegisterTools registers all engine tools with the MCP server.
func RegisterTools(server *mcpserver.MCPServer, service *chat.Service, processor *ingest.Processor, index storage.VectorIndex, configs storage.ConfigProvider, addChunk AddChunkFunc) *Handlers {
	handlers := &Handlers{
		service:   service,
		processor: processor,
		index:     index,
		configs:   configs,
		addChunk:  addChunk,
	}

	server.AddTool(mcp.Tool{
		Name:        "send_message",
		Description: "Send a user message to the chatbot. Returns either reply segments or a pending ticket confirmation the user must resolve.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"channel_id": map[string]interface{}{
					"type":        "string",
					"description": "Channel the message was sent in; resolves the chatbot configuration",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the user sending the message",
				},
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The user's message text",
				},
			},
			Required: []string{"channel_id", "user_id", "message"},
		},
	}, handlers.SendMessage)

	server.AddTool(mcp.Tool{
		Name:        "resolve_confirmation",
		Description: "Confirm or cancel a pending ticket confirmation. Only the user who triggered it may resolve it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirmation_id": map[string]interface{}{
					"type":        "string",
					"description": "ID from a previous send_message confirmation",
				},
				"confirmed": map[string]interface{}{
					"type":        "boolean",
					"description": "true to create the ticket, false to cancel",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the resolving user",
				},
			},
			Required: []string{"confirmation_id", "confirmed", "user_id"},
		},
	}, handlers.ResolveConfirmation)

	server.AddTool(mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed and index a document file into a guild's knowledge base.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"guild_id": map[string]interface{}{
					"type":        "string",
					"description": "Guild whose knowledge base receives the document",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to a .txt or .md file",
				},
				"deduplicate": map[string]interface{}{
					"type":        "boolean",
					"description": "Drop duplicate chunks within the document (default: true)",
					"default":     true,
				},
			},
			Required: []string{"guild_id", "path"},
		},
	}, handlers.IngestDocument)

	server.AddTool(mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search a guild's knowledge base and return the top matching chunks.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"guild_id": map[string]interface{}{
					"type":        "string",
					"description": "Guild whose knowledge base to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results to return (default: 5)",
					"default":     5,
				},
			},
			Required: []string{"guild_id", "query"},
		},
	}, handlers.SearchKnowledge)

	return handlers
}

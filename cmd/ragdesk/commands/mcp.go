// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Exposes the chat engine to LLM agents over stdio
package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"ragdesk/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	var useCharm bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs ragdesk as an MCP (Model Context Protocol) server over stdio,
exposing send_message, resolve_confirmation, ingest_document and
search_knowledge tools.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(useCharm)
		},
		Example: `  # Start MCP server (typically launched by the agent host)
  ragdesk mcp

  # With charm-backed persistent storage
  ragdesk mcp --charm`,
	}

	cmd.Flags().BoolVar(&useCharm, "charm", false, "Persist history and chunks in charm KV")

	return cmd
}

// runMCP starts the MCP server
func runMCP(useCharm bool) error {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil && !quiet {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Println("Warning: OPENAI_API_KEY not set - chat and ingestion will not work")
	}

	eng, err := buildEngine(useCharm)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer eng.close()

	server := mcpserver.NewMCPServer(
		"ragdesk",
		versionInfo.Version,
	)

	mcp.RegisterTools(server, eng.service, eng.processor, eng.index, eng.configs, eng.addChunk)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !quiet {
		log.Println("ragdesk MCP server starting on stdio...")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			log.Println("Shutdown signal received, gracefully shutting down...")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}

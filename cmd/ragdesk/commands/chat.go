// ABOUTME: Chat command for talking to the engine from the terminal
// ABOUTME: Handles reply segments and interactive ticket confirmations
package commands

import (
	"bufio"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragdesk/internal/chat"
	"ragdesk/internal/models"
)

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	var (
		userID   string
		useCharm bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the knowledge-grounded assistant",
		Long: `Chat with the assistant. With a message argument, sends it and
prints the reply. Without one, starts an interactive session.

When the assistant proposes opening a support ticket you are asked to
confirm before anything is created.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args, userID, useCharm)
		},
		Example: `  # One-shot question
  ragdesk chat "How do I reset my password?"

  # Interactive session with persistent storage
  ragdesk chat --charm`,
	}

	cmd.Flags().StringVar(&userID, "user", "cli-user", "User ID for history and ticket ownership")
	cmd.Flags().BoolVar(&useCharm, "charm", false, "Persist history and chunks in charm KV")

	return cmd
}

func runChat(cmd *cobra.Command, args []string, userID string, useCharm bool) error {
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("No .env file found: %v", err)
	}

	eng, err := buildEngine(useCharm)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer eng.close()

	cfg := localChatbotConfig(eng.cfg)
	reader := bufio.NewReader(cmd.InOrStdin())

	if len(args) > 0 {
		return sendOne(cmd, eng, reader, cfg, userID, strings.Join(args, " "))
	}

	// Interactive session: one message per line, "exit" or EOF ends it.
	fmt.Fprintln(cmd.OutOrStdout(), "Type your message (\"exit\" to quit):")
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := sendOne(cmd, eng, reader, cfg, userID, line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

// sendOne handles a single message, resolving any confirmation inline.
func sendOne(cmd *cobra.Command, eng *engine, reader *bufio.Reader, cfg models.ChatbotConfig, userID, message string) error {
	resp, err := eng.service.HandleMessage(cmd.Context(), cfg, userID, message)
	if err != nil {
		return err
	}

	if resp.Confirmation == nil {
		for _, seg := range resp.Segments {
			fmt.Fprintln(cmd.OutOrStdout(), seg)
		}
		return nil
	}

	return resolveInline(cmd, eng, reader, resp.Confirmation, userID)
}

// resolveInline asks for a y/n answer to a pending ticket confirmation.
func resolveInline(cmd *cobra.Command, eng *engine, reader *bufio.Reader, prompt *chat.ConfirmationPrompt, userID string) error {
	fmt.Fprintln(cmd.OutOrStdout(), prompt.Explanation)
	fmt.Fprintf(cmd.OutOrStdout(), "Regarding: %q\n", truncate(prompt.OriginalMessage, 80))
	fmt.Fprint(cmd.OutOrStdout(), "Create the ticket? [y/N] ")

	line, err := reader.ReadString('\n')
	if err != nil {
		line = ""
	}
	confirmed := false
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		confirmed = true
	}

	result, err := eng.service.Resolve(cmd.Context(), prompt.ID, confirmed, userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}

// ABOUTME: Ingest command loads documents into the knowledge base
// ABOUTME: Chunks, deduplicates and embeds files, then indexes the chunks
package commands

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragdesk/internal/ingest"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	var (
		guildID  string
		tags     []string
		noDedupe bool
		useCharm bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the knowledge base",
		Long: `Ingest one or more text documents into the knowledge base.

Each document is split into overlapping chunks, embedded, and indexed
under the guild's scope so chat can ground its answers in it.
Supported formats: .txt, .md, .markdown`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, guildID, tags, !noDedupe, useCharm)
		},
		Example: `  # Ingest a single document
  ragdesk ingest docs/faq.md

  # Ingest several files with tags, persisted in charm KV
  ragdesk ingest --charm --tags billing,policy docs/*.md`,
	}

	cmd.Flags().StringVar(&guildID, "guild", "", "Guild scope to index under (default from RAGDESK_GUILD_ID)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags to attach to every chunk")
	cmd.Flags().BoolVar(&noDedupe, "no-dedupe", false, "Keep chunks with duplicate content")
	cmd.Flags().BoolVar(&useCharm, "charm", false, "Persist chunks in charm KV")

	return cmd
}

// runIngest processes and indexes each document in turn
func runIngest(cmd *cobra.Command, paths []string, guildID string, tags []string, dedupe, useCharm bool) error {
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("No .env file found: %v", err)
	}

	eng, err := buildEngine(useCharm)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer eng.close()

	if guildID == "" {
		guildID = localGuildID()
	}

	// A configured overlap of 0 means no overlap, not "use the default".
	overlap := eng.cfg.ChunkOverlap
	if overlap == 0 {
		overlap = ingest.ChunkOverlapNone
	}

	opts := ingest.Options{
		ChunkSize:     eng.cfg.ChunkSize,
		ChunkOverlap:  overlap,
		MaxConcurrent: eng.cfg.MaxConcurrentEmbeds,
		Tags:          tags,
		Deduplicate:   dedupe,
	}

	total := 0
	for _, path := range paths {
		chunks, err := eng.processor.ProcessDocument(cmd.Context(), path, opts)
		if err != nil {
			return fmt.Errorf("processing %s: %w", path, err)
		}

		indexed := 0
		for _, chunk := range chunks {
			if err := eng.addChunk(guildID, chunk); err != nil {
				return fmt.Errorf("indexing chunk from %s: %w", path, err)
			}
			indexed++
		}

		total += indexed
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d chunks indexed\n", path, indexed)
		}
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Done. %d chunks indexed under guild %q.\n", total, guildID)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragcore/ragcore/internal/store"
)

func newIngestCmd() *cobra.Command {
	var maxChars int
	var metadata string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk and index a document",
		Long: `Reads a file, splits it into chunks (Markdown-aware for .md files,
paragraph-first otherwise), and adds it to the store and BM25 index.

Chunks are indexed with no embedding: ragcli has no configured
EmbeddingProvider, so the resulting source is searchable by keyword only
until a caller embeds its chunks via pkg/ragengine.Engine.UpdateChunkEmbedding.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], maxChars, metadata)
		},
	}

	cmd.Flags().IntVar(&maxChars, "max-chars", 1500, "target maximum chunk size in characters")
	cmd.Flags().StringVar(&metadata, "metadata", "", "opaque metadata string attached to the source")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, maxChars int, metadata string) error {
	ctx := cmd.Context()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	contentType := store.ContentTypeText
	var chunks []*store.Chunk
	if strings.EqualFold(filepath.Ext(path), ".md") {
		contentType = store.ContentTypeMarkdown
		chunks, err = engine.MarkdownChunk(string(content), maxChars)
	} else {
		chunks, err = engine.SemanticChunk(string(content), maxChars)
	}
	if err != nil {
		return fmt.Errorf("chunk %s: %w", path, err)
	}

	src, err := engine.AddSource(ctx, path, contentType, metadata, content)
	if err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	for _, c := range chunks {
		c.SourceID = src.ID
	}

	if err := engine.AddChunks(ctx, chunks); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %s as source %s (%d chunks)\n", path, src.ID, len(chunks))
	return nil
}

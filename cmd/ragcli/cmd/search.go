package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragcore/ragcore/internal/intent"
	"github.com/ragcore/ragcore/internal/retrieve"
)

func newSearchCmd() *cobra.Command {
	var topK int
	var sourceIDs []string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against the index",
		Long: `Runs the hybrid retriever's BM25 keyword pass. ragcli has no
configured EmbeddingProvider, so the vector candidate generator is skipped
(an empty query embedding degrades gracefully, per spec.md §7) and only
keyword matches are returned; pkg/ragengine.Engine.SearchHybrid accepts a
query embedding directly for callers that embed it themselves.

The query is first run through the slash-command intent parser: a
recognized command (/summary, /define, /more) searches on its argument
rather than the raw input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], topK, sourceIDs)
		},
	}

	cmd.Flags().IntVar(&topK, "top", 10, "number of results to return")
	cmd.Flags().StringSliceVar(&sourceIDs, "source", nil, "restrict results to these source IDs")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, topK int, sourceIDs []string) error {
	ctx := cmd.Context()

	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	parsed := engine.ParseIntent(query)
	effectiveQuery := query
	if parsed.Valid && parsed.Type != intent.TypeGeneral {
		effectiveQuery = parsed.Query
	}

	var filter *retrieve.Filter
	if len(sourceIDs) > 0 {
		filter = &retrieve.Filter{SourceIDs: sourceIDs}
	}

	results, err := engine.SearchHybrid(ctx, effectiveQuery, nil, topK, nil, filter)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] score=%.4f %s\n", i+1, r.ChunkID, r.Score, truncate(r.Content, 120))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}

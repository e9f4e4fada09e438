package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index sizes and readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()

	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := engine.Stats()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bm25:   docs=%d terms=%d avg_len=%.1f\n", stats.BM25.DocCount, stats.BM25.TermCount, stats.BM25.AvgDocLength)
	fmt.Fprintf(out, "ann:    vectors=%d ready=%t\n", stats.ANNCount, stats.ANNReady)
	fmt.Fprintf(out, "buffer: pending=%d needs_merge=%t\n", stats.Buffer.PendingCount, stats.Buffer.NeedsMerge)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild {ann|bm25|all}",
		Short: "Force a full index rebuild from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd, args[0])
		},
	}
	return cmd
}

func runRebuild(cmd *cobra.Command, target string) error {
	ctx := cmd.Context()

	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	switch target {
	case "ann":
		err = engine.RebuildANN(ctx)
	case "bm25":
		err = engine.RebuildBM25(ctx)
	case "all":
		if err = engine.RebuildANN(ctx); err == nil {
			err = engine.RebuildBM25(ctx)
		}
	default:
		return fmt.Errorf("unknown rebuild target %q (want ann, bm25, or all)", target)
	}
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", target, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s\n", target)
	return nil
}

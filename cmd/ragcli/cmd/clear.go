package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every source, chunk, and index entry",
		Long:  `Wipes the store, the BM25 index, the ANN index, and the recent-insert buffer. Irreversible.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			return runClear(cmd)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive clear")
	return cmd
}

func runClear(cmd *cobra.Command) error {
	ctx := cmd.Context()

	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "cleared")
	return nil
}

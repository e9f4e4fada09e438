// Package cmd provides the ragcli command-line adaptation layer over
// pkg/ragengine. Per spec.md §9's design note, this layer is a thin host
// binding, not part of the core: it owns flag parsing, config loading, and
// stdout formatting, and delegates every retrieval-engine operation to
// pkg/ragengine.Engine.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragcore/ragcore/internal/config"
	"github.com/ragcore/ragcore/internal/logging"
	"github.com/ragcore/ragcore/pkg/ragengine"
)

var (
	dbPath    string
	configDir string
	debugMode bool
)

// NewRootCmd creates the root ragcli command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragcli",
		Short: "Local hybrid retrieval engine CLI",
		Long: `ragcli is a command-line front end over ragcore's hybrid
retrieval engine: SQLite-backed storage, BM25 keyword search, and HNSW
approximate nearest-neighbor search, fused by Reciprocal Rank Fusion.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "ragcore.db", "path to the SQLite database file")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding .ragcore.yaml (defaults to the db's directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to stderr")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadEngine builds the shared config and opens an Engine over dbPath,
// used by every subcommand's RunE. The caller is responsible for closing
// the returned Engine.
func loadEngine(ctx context.Context) (*ragengine.Engine, error) {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	_ = cleanup // released on process exit; ragcli is a one-shot CLI, not a long-lived server

	dir := configDir
	if dir == "" {
		dir = filepath.Dir(dbPath)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Store.Path = dbPath

	engine, err := ragengine.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return engine, nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/satoshigo/hunt/internal/config"
	"github.com/satoshigo/hunt/internal/export"
)

var flagExportDir string

var exportCmd = &cobra.Command{
	Use:   "export <gameID>...",
	Short: "Write games as gzip JSON documents",
	Long: `Export one or more games with their fundings, areas and items.

Each game is written to <title>_<timestamp>.json.gz in the output directory.
An in-memory SQLite store is read from its last dump.

Examples:
  satoshigo export 0b6f5c1e-2c4d-4c1f-9d61-0a4c2f3b7e11
  satoshigo export g1 g2 --out ./exports`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportDir, "out", ".", "Output directory")
}

func runExport(cmd *cobra.Command, args []string) error {
	svc := setupServices(time.Now())
	defer func() { _ = svc.close(context.Background()) }()

	store, err := createStorageBackend(readOnlyStorage(config.GetStorageConfig()), svc.SlogManager)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() { _ = store.Close() }()

	for _, gameID := range args {
		start := time.Now()
		path, err := export.ToFile(cmd.Context(), store, gameID, flagExportDir, start)
		if err != nil {
			return fmt.Errorf("export %s: %w", gameID, err)
		}
		svc.Logger.Info("Wrote game data", "game", gameID, "path", path, "duration", time.Since(start))
		fmt.Println(path)
	}
	return nil
}

// optrack-export writes all settled positions from the configured store to a
// Parquet archive file for offline analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"optrack/internal/config"
	"optrack/internal/store"
	"optrack/internal/util"
)

func main() {
	var (
		cfgPath = flag.String("config", "config/optrack.yaml", "path to config file")
		outPath = flag.String("out", "data/settled_positions.parquet", "output Parquet file")
	)
	flag.Parse()

	_ = godotenv.Load()

	if p := os.Getenv("OPTRACK_CONFIG"); p != "" && !flagPassed("config") {
		*cfgPath = p
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text", os.Stderr)
	slog.SetDefault(logger)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	positions, err := st.List(context.Background(), store.FilterInactive)
	if err != nil {
		log.Fatalf("listing settled positions: %v", err)
	}
	if len(positions) == 0 {
		logger.Info("no settled positions to export")
		return
	}

	if err := store.WriteArchive(*outPath, positions); err != nil {
		log.Fatalf("writing archive: %v", err)
	}
	logger.Info("archive written", "path", *outPath, "positions", len(positions))
}

func openStore(cfg *config.Config) (store.PositionStore, error) {
	switch cfg.Storage.Backend {
	case "snapshot":
		return store.NewSnapshotStore(cfg.Storage.SnapshotPath)
	case "sqlite", "":
		return store.NewSQLiteStore(cfg.Storage.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

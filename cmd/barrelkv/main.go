// Package main provides the entry point for the barrelkv key-value store
// application. It loads configuration, initializes the logger from it,
// opens the storage engine, and starts the command-line interface.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/arjunvostrikov/barrelkv/internal/cli"
	"github.com/arjunvostrikov/barrelkv/internal/config"
	"github.com/arjunvostrikov/barrelkv/internal/engine"
)

func main() {
	// Load configuration first so its LOG_LEVEL can drive the logger.
	slog.Info("main: loading configuration")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})
	slog.SetDefault(slog.New(slogHandler))

	slog.Info("main: configuration loaded successfully",
		"data_dir", cfg.DATA_DIR,
		"max_file_size", cfg.MAX_FILE_SIZE,
		"read_write", cfg.READ_WRITE,
		"sync_on_put", cfg.SYNC_ON_PUT,
		"keydir_capacity", cfg.KEYDIR_CAPACITY,
	)

	kv, err := engine.Open(cfg.DATA_DIR, cfg.Options())
	if err != nil {
		slog.Error("main: failed to open engine", "error", err)
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Error("main: error closing engine", "error", err)
		}
	}()

	slog.Info("main: barrelkv started successfully")

	cliHandler := cli.NewHandler(kv)
	if err := cliHandler.Run(); err != nil {
		slog.Error("main: CLI handler error", "error", err)
		log.Fatalf("CLI error: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
)

// runInit creates the data directory and database (sqlite.Open/postgres.Open
// apply pending migrations as part of opening), then exits. A subsequent
// "serve" or any thin client reuses the same database.
func runInit(ctx context.Context, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer store.Close()

	fmt.Printf("mnemosyne: initialized %s storage at %s\n", cfg.Storage.StorageEngine, dataDir(cfg))
	return nil
}

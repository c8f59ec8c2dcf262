package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rand/mnemosyne/internal/backup"
	"github.com/rand/mnemosyne/internal/config"
	"github.com/rand/mnemosyne/internal/connections"
	"github.com/rand/mnemosyne/internal/enricher"
	"github.com/rand/mnemosyne/internal/evolution"
	"github.com/rand/mnemosyne/internal/engine"
	"github.com/rand/mnemosyne/internal/linker"
	"github.com/rand/mnemosyne/internal/llm"
	"github.com/rand/mnemosyne/internal/retriever"
	"github.com/rand/mnemosyne/internal/secrets"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/internal/storage/postgres"
	"github.com/rand/mnemosyne/internal/storage/sqlite"
)

// fullStore is the union of every storage interface a single backend must
// satisfy for the capture/recall/evolution core to run against it; both
// sqlite.MemoryStore and postgres.MemoryStore implement all of it.
type fullStore interface {
	storage.MemoryStore
	storage.LinkStore
	storage.SearchProvider
	storage.GraphProvider
	storage.EmbeddingProvider
	storage.JobRunStore
}

// app bundles everything wired from config, shared by every subcommand that
// needs live access to the memory core.
type app struct {
	cfg          *config.Config
	store        fullStore
	engine       *engine.MemoryEngine
	consolidator evolution.Consolidator
	enricher     enricher.Enricher
}

// connectionProfilePath is the optional on-disk profile, resolved relative
// to the working directory. loadConfig applies it after the environment has
// been read, so its values override environment-variable configuration.
const connectionProfilePath = "mnemosyne.yaml"

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if profile, err := config.LoadConnectionProfile(connectionProfilePath); err == nil {
		profile.Apply(cfg)
	}
	return cfg, nil
}

func dataDir(cfg *config.Config) string {
	dir := cfg.Storage.DataDir
	if dir == "" {
		dir = "./data"
	}
	return dir
}

func dbPath(cfg *config.Config) string {
	return filepath.Join(dataDir(cfg), "mnemosyne.db")
}

func openStore(ctx context.Context, cfg *config.Config) (fullStore, error) {
	if err := os.MkdirAll(dataDir(cfg), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	switch cfg.Storage.StorageEngine {
	case "postgres", "postgresql":
		dsn := os.Getenv("MNEMOSYNE_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("MNEMOSYNE_POSTGRES_DSN is required when MNEMOSYNE_STORAGE_ENGINE=postgres")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store (dsn: %s): %w", connections.SanitizeDSN(dsn), err)
		}
		return store, nil
	default:
		return sqlite.Open(ctx, dbPath(cfg))
	}
}

// resolveAPIKey reads the configured provider's credential, preferring the
// OS secret store and falling back to the environment variable already read
// into cfg.LLM, per §6.4's precedence rule.
func resolveAPIKey(cfg *config.Config) string {
	key, err := secrets.Get(cfg.LLM.LLMProvider, cfg.LLM.APIKey())
	if err != nil {
		return cfg.LLM.APIKey()
	}
	return key
}

func llmConnectionConfig(cfg *config.Config) connections.LLMConfig {
	lc := connections.LLMConfig{
		Provider: cfg.LLM.LLMProvider,
		APIKey:   resolveAPIKey(cfg),
	}
	switch cfg.LLM.LLMProvider {
	case "openai":
		lc.Model = cfg.LLM.OpenAIModel
	case "anthropic":
		lc.Model = cfg.LLM.AnthropicModel
	default:
		lc.Model = cfg.LLM.OllamaModel
		lc.BaseURL = cfg.LLM.OllamaURL
	}
	lc.EmbeddingModel = cfg.LLM.OllamaEmbeddingModel
	return lc
}

// buildEnricherAndLinker selects the mock or real implementations per
// FeaturesConfig.UseMockLLM, both sharing one TextGenerator so the circuit
// breaker state (and therefore degrade behavior) is consistent across the
// two call sites within one process.
func buildEnricherAndLinker(cfg *config.Config) (enricher.Enricher, linker.Linker, evolution.Consolidator, llm.EmbeddingGenerator, error) {
	if cfg.Features.UseMockLLM() {
		return enricher.NewMock(), linker.NewMock(), evolution.NewMockConsolidator(), nil, nil
	}

	lc := llmConnectionConfig(cfg)
	generator, err := llm.NewTextGenerator(lc)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("build LLM text generator: %w", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(lc, cfg.LLM.OllamaEmbeddingModel)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("build LLM embedding generator: %w", err)
	}

	const callTimeout = 30 * time.Second
	enr := enricher.New(generator, callTimeout)
	lnk := linker.New(generator, callTimeout)
	consolidator := evolution.NewLLMConsolidator(generator, callTimeout)
	return enr, lnk, consolidator, embedder, nil
}

// newApp wires config, storage, the LLM backend, and the capture/recall
// engine, but does not start the engine's worker pool or any long-running
// goroutine — callers that need those call engine.Start themselves (serve)
// or skip it entirely for short-lived CLI commands that only read.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	enr, lnk, consolidator, embedder, err := buildEnricherAndLinker(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	recall := retriever.New(store, store, store, store, embedder)
	eng, err := engine.New(engine.DefaultConfig(), store, store, store, enr, lnk, recall)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build memory engine: %w", err)
	}

	return &app{cfg: cfg, store: store, engine: eng, consolidator: consolidator, enricher: enr}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// newBackupService builds the scheduled snapshot service from
// BackupConfig, for "serve" to run alongside the scheduler when backups are
// enabled. Only meaningful against the sqlite backend, which is the only
// one backed by a single on-disk file a BackupService can copy.
func newBackupService(cfg *config.Config) (*backup.BackupService, error) {
	return backup.NewBackupService(backup.BackupConfig{
		DBPath:    dbPath(cfg),
		BackupDir: cfg.Backup.BackupPath,
		Interval:  backupInterval(cfg),
		Retention: backup.RetentionPolicy{
			Hourly:  cfg.Backup.BackupRetentionHourly,
			Daily:   cfg.Backup.BackupRetentionDaily,
			Weekly:  cfg.Backup.BackupRetentionWeekly,
			Monthly: cfg.Backup.BackupRetentionMonthly,
		},
		VerifyBackups: cfg.Backup.BackupVerify,
	})
}

func backupInterval(cfg *config.Config) time.Duration {
	if cfg.Backup.BackupInterval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(cfg.Backup.BackupInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

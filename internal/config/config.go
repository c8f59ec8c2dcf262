// Package config provides configuration management for mnemosyne.
// It loads settings from environment variables with the MNEMOSYNE_ prefix
// and provides sensible defaults for all configuration options.
//
// User settings (e.g., user_name) are persisted to the settings table in
// the database. LoadConfigFromDB reads from the database first and falls back
// to environment variables. SaveConfig writes user settings to the database.
package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for mnemosyne.
type Config struct {
	Storage     StorageConfig
	LLM         LLMConfig
	Security    SecurityConfig
	Backup      BackupConfig
	Features    FeaturesConfig
	Broadcaster BroadcasterConfig
	User        UserConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataDir       string // Path to data directory (default: ./data), env: MNEMOSYNE_DATA_DIR
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	LLMProvider          string // LLM provider: ollama, openai, anthropic (default: ollama)
	OllamaURL            string // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string // Ollama model name for extraction (default: qwen2.5:7b)
	OllamaEmbeddingModel string // Ollama model name for embeddings (default: nomic-embed-text)
	OpenAIAPIKey         string // OpenAI API key
	OpenAIModel          string // OpenAI model name (default: gpt-4)
	AnthropicAPIKey      string // Anthropic API key, env: ANTHROPIC_API_KEY
	AnthropicModel       string // Anthropic model name (default: claude-3-5-sonnet-20241022)
}

// APIKey resolves the credential for the configured provider. The OS secret
// store (internal/secrets) is the preferred source; this is the
// environment-variable fallback named in §6.4, read here so callers with no
// secret-store hit still get a usable key.
func (c LLMConfig) APIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // RPC-adjacent authentication token, if ever fronted by a network transport
}

// BackupConfig contains backup configuration.
type BackupConfig struct {
	BackupEnabled          bool   // Enable automatic backups (default: false)
	BackupInterval         string // Backup interval duration (default: 24h)
	BackupPath             string // Path to backup directory (default: ./backups)
	BackupVerify           bool   // Verify backups after creation (default: true)
	BackupRetentionHourly  int    // Number of hourly backups to keep (default: 24)
	BackupRetentionDaily   int    // Number of daily backups to keep (default: 7)
	BackupRetentionWeekly  int    // Number of weekly backups to keep (default: 4)
	BackupRetentionMonthly int    // Number of monthly backups to keep (default: 12)
}

// FeaturesConfig contains the feature-flag style settings from §6.4.
type FeaturesConfig struct {
	// Enrichment selects the Enricher/Linker backend: "on" (real LLM,
	// default), "off" (disabled, memories stored unenriched), or "mock"
	// (deterministic mock generator). Env: MNEMOSYNE_ENRICHMENT.
	Enrichment string
	// TestMode is "baseline" (real LLM, real API key, default) or
	// "regression" (forces the mock generator regardless of Enrichment).
	// Env: MNEMOSYNE_TEST_MODE.
	TestMode string
}

// UseMockLLM reports whether the Enricher/Linker should be constructed
// against the deterministic mock generator instead of a real LLM backend,
// per §4.2's DOMAIN STACK note: mock is registered when TestMode is
// "regression" or Enrichment is explicitly "mock".
func (f FeaturesConfig) UseMockLLM() bool {
	return f.TestMode == "regression" || f.Enrichment == "mock"
}

// EnrichmentEnabled reports whether captured memories should be enriched at
// all (false only when Enrichment is explicitly "off").
func (f FeaturesConfig) EnrichmentEnabled() bool {
	return f.Enrichment != "off"
}

// BroadcasterConfig controls the event broadcaster's HTTP/SSE endpoint.
type BroadcasterConfig struct {
	BasePort int // First port tried in the owner port race (default: 3000)
}

// UserConfig contains user-specific settings that persist across restarts.
// These settings are stored in the settings table in the database.
type UserConfig struct {
	// UserName is the display name for the user.
	// Env var: MNEMOSYNE_USER_NAME
	// Database key: user_name
	UserName string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the MNEMOSYNE_ prefix.
// User settings (UserConfig) are loaded from environment variables only.
// Use LoadConfigFromDB to also read persisted user settings from the database.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, nil
}

// LoadConfigFromDB loads configuration from both environment variables and the
// database. The database value takes precedence over the environment variable
// for user settings. Falls back to environment variable when no DB entry exists.
//
// Returns an error if db is nil.
func LoadConfigFromDB(db *sql.DB) (*Config, error) {
	if db == nil {
		return nil, errors.New("config: database connection is required")
	}

	cfg := buildBaseConfig()

	// Load user_name from settings table (DB takes precedence over env var)
	userName, err := getSetting(db, "user_name")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config: failed to load user_name from database: %w", err)
	}

	if userName != "" {
		// DB value overrides env var
		cfg.User.UserName = userName
	}
	// If no DB value, cfg.User.UserName already has the env var value from buildBaseConfig()

	return cfg, nil
}

// SaveConfig persists user configuration settings to the settings table in the
// database. Uses upsert semantics: inserts if not present, updates if already
// stored. This ensures user settings survive application restarts.
//
// Returns an error if db is nil.
func (c *Config) SaveConfig(db *sql.DB) error {
	if db == nil {
		return errors.New("config: database connection is required")
	}

	if err := setSetting(db, "user_name", c.User.UserName); err != nil {
		return fmt.Errorf("config: failed to save user_name: %w", err)
	}

	return nil
}

// getSetting retrieves a single setting value by key from the settings table.
// Returns an empty string and sql.ErrNoRows if the key does not exist.
func getSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// setSetting writes a key-value pair to the settings table using upsert semantics.
func setSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults. This is the shared base for both LoadConfig and LoadConfigFromDB.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("MNEMOSYNE_STORAGE_ENGINE", "sqlite"),
			DataDir:       getEnv("MNEMOSYNE_DATA_DIR", "./data"),
		},
		LLM: LLMConfig{
			LLMProvider:          getEnv("MNEMOSYNE_LLM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("MNEMOSYNE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("MNEMOSYNE_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("MNEMOSYNE_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("MNEMOSYNE_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("MNEMOSYNE_OPENAI_MODEL", "gpt-4"),
			AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnv("MNEMOSYNE_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("MNEMOSYNE_SECURITY_MODE", "development"),
			APIToken:     getEnv("MNEMOSYNE_API_TOKEN", ""),
		},
		Backup: BackupConfig{
			BackupEnabled:          getEnvBool("MNEMOSYNE_BACKUP_ENABLED", false),
			BackupInterval:         getEnv("MNEMOSYNE_BACKUP_INTERVAL", "24h"),
			BackupPath:             getEnv("MNEMOSYNE_BACKUP_PATH", "./backups"),
			BackupVerify:           getEnvBool("MNEMOSYNE_BACKUP_VERIFY", true),
			BackupRetentionHourly:  getEnvInt("MNEMOSYNE_BACKUP_RETENTION_HOURLY", 24),
			BackupRetentionDaily:   getEnvInt("MNEMOSYNE_BACKUP_RETENTION_DAILY", 7),
			BackupRetentionWeekly:  getEnvInt("MNEMOSYNE_BACKUP_RETENTION_WEEKLY", 4),
			BackupRetentionMonthly: getEnvInt("MNEMOSYNE_BACKUP_RETENTION_MONTHLY", 12),
		},
		Features: FeaturesConfig{
			Enrichment: strings.ToLower(getEnv("MNEMOSYNE_ENRICHMENT", "on")),
			TestMode:   strings.ToLower(getEnv("MNEMOSYNE_TEST_MODE", "baseline")),
		},
		Broadcaster: BroadcasterConfig{
			BasePort: getEnvInt("MNEMOSYNE_BROADCASTER_PORT", 3000),
		},
		User: UserConfig{
			UserName: getEnv("MNEMOSYNE_USER_NAME", ""),
		},
	}
}

// ConnectionProfile is the optional on-disk YAML file naming a connection
// profile (provider, model, data directory, broadcaster port range) for
// users who don't want to set environment variables every run. Apply runs
// after buildBaseConfig() has read the environment, so values set here
// override both the defaults and any environment variables set for the
// same fields.
type ConnectionProfile struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	DataDir         string `yaml:"data_dir"`
	BroadcasterPort int    `yaml:"broadcaster_port"`
}

// LoadConnectionProfile parses a YAML connection profile from path. A
// missing file is not an error: it returns (nil, nil), since the profile is
// optional and env vars alone are a complete configuration.
func LoadConnectionProfile(path string) (*ConnectionProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read connection profile: %w", err)
	}

	var profile ConnectionProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parse connection profile %s: %w", path, err)
	}
	return &profile, nil
}

// Apply merges non-zero ConnectionProfile fields into cfg. Environment
// variables are read first by buildBaseConfig, so this only fills in values
// the profile sets explicitly; it never needs to distinguish "unset" from
// "default" on the Config side because it simply overwrites.
func (p *ConnectionProfile) Apply(cfg *Config) {
	if p == nil {
		return
	}
	if p.Provider != "" {
		cfg.LLM.LLMProvider = p.Provider
	}
	if p.Model != "" {
		switch cfg.LLM.LLMProvider {
		case "openai":
			cfg.LLM.OpenAIModel = p.Model
		case "anthropic":
			cfg.LLM.AnthropicModel = p.Model
		default:
			cfg.LLM.OllamaModel = p.Model
		}
	}
	if p.EmbeddingModel != "" {
		cfg.LLM.OllamaEmbeddingModel = p.EmbeddingModel
	}
	if p.DataDir != "" {
		cfg.Storage.DataDir = p.DataDir
	}
	if p.BroadcasterPort != 0 {
		cfg.Broadcaster.BasePort = p.BroadcasterPort
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false,
// each in lower, Title or UPPER case; other casings fall back to the default.
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

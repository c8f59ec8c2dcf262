package storage

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// MigrationManager manages database schema migrations using plain SQL
// files, numbered NNN_name.up.sql, applied strictly-greater-than the
// current version inside per-script transactions. The current version is
// tracked in the metadata key-value table under "schema_version", per
// SPEC_FULL.md §4.1/§6.1 — not a separate schema_migrations table.
//
// Each backend (sqlite, postgres) embeds its own migrations/ directory,
// since the DDL dialect differs, and passes it to NewMigrationManager.
type MigrationManager struct {
	db  *sql.DB
	src fs.FS
}

type migration struct {
	version uint
	name    string
	sql     string
}

// NewMigrationManager creates a MigrationManager reading migration scripts
// from src, a filesystem rooted directly at the directory containing the
// NNN_name.up.sql/.down.sql files (typically an embed.FS subtree).
func NewMigrationManager(db *sql.DB, src fs.FS) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if src == nil {
		return nil, fmt.Errorf("migrations: migration source fs is required")
	}
	return &MigrationManager{db: db, src: src}, nil
}

// Up applies all migrations with version strictly greater than the current
// schema_version, each inside its own transaction, failing closed on the
// first error (per §4.1 runner contract). Must be called at every process
// start, not only on `init`.
func (mgr *MigrationManager) Up() error {
	if err := mgr.ensureMetadataTable(); err != nil {
		return fmt.Errorf("migrations: ensure metadata table: %w", err)
	}

	migrations, err := mgr.loadMigrations()
	if err != nil {
		return fmt.Errorf("migrations: load migration files: %w", err)
	}

	current, err := mgr.Version()
	if err != nil {
		return fmt.Errorf("migrations: read current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := mgr.db.Begin()
		if err != nil {
			return fmt.Errorf("migrations: begin tx for version %d (%s): %w", m.version, m.name, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrations: apply version %d (%s): %w", m.version, m.name, err)
		}

		// The version is parsed from an embedded filename, never user input,
		// so it is safe to inline rather than route through a placeholder —
		// sqlite's "?" and postgres's "$1" styles otherwise need separate
		// query strings for every dialect this runner supports.
		versionSQL := fmt.Sprintf(
			`INSERT INTO metadata (key, value) VALUES ('schema_version', '%d')
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			m.version,
		)
		if _, err := tx.Exec(versionSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrations: record version %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrations: commit version %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// Version returns the current schema_version, or 0 if no migration has
// ever been applied.
func (mgr *MigrationManager) Version() (uint, error) {
	var raw string
	err := mgr.db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migrations: corrupt schema_version value %q: %w", raw, err)
	}
	return uint(v), nil
}

func (mgr *MigrationManager) ensureMetadataTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// loadMigrations reads and parses migration files named NNN_name.up.sql,
// sorted ascending by version.
func (mgr *MigrationManager) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(mgr.src, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		underscoreIdx := strings.Index(name, "_")
		if underscoreIdx < 0 {
			continue
		}
		versionInt, err := strconv.ParseUint(name[:underscoreIdx], 10, 64)
		if err != nil {
			continue
		}

		data, err := fs.ReadFile(mgr.src, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		migrations = append(migrations, migration{
			version: uint(versionInt),
			name:    strings.TrimSuffix(name[underscoreIdx+1:], ".up.sql"),
			sql:     string(data),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}

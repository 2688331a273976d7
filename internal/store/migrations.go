package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: blob_records and blob_attributes tables",
		SQL: `
CREATE TABLE IF NOT EXISTS blob_records (
  blob_id TEXT PRIMARY KEY,
  object_id TEXT,
  size INTEGER NOT NULL,
  sha256 TEXT NOT NULL,
  sha512 TEXT NOT NULL,
  blake2b TEXT NOT NULL,
  registered_epoch INTEGER NOT NULL,
  certified_epoch INTEGER,
  expiration_epoch INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  CHECK (certified_epoch IS NULL OR certified_epoch >= registered_epoch)
);

CREATE TABLE IF NOT EXISTS blob_attributes (
  blob_id TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  UNIQUE(blob_id, key),
  FOREIGN KEY (blob_id) REFERENCES blob_records(blob_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_blob_records_expiration ON blob_records(expiration_epoch);
CREATE INDEX IF NOT EXISTS idx_blob_attributes_blob ON blob_attributes(blob_id);
`,
	},
	{
		Version:     2,
		Description: "renewal history",
		SQL: `
CREATE TABLE IF NOT EXISTS blob_renewals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  blob_id TEXT NOT NULL,
  digest TEXT NOT NULL,
  added_epochs INTEGER NOT NULL,
  previous_epoch INTEGER NOT NULL,
  new_expiration_epoch INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (blob_id) REFERENCES blob_records(blob_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_blob_renewals_blob ON blob_renewals(blob_id, created_at);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// sortedMigrations returns migrations in ascending version order.
func sortedMigrations() []Migration {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func hasTable(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	return count > 0, err
}

// appliedVersion returns the highest recorded migration, or 0 if none.
func appliedVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// detectPreMigrationDB reports a vault whose blob_records table predates
// migration tracking: the table exists but no version was ever recorded.
func detectPreMigrationDB(db *sql.DB) (bool, error) {
	records, err := hasTable(db, "blob_records")
	if err != nil || !records {
		return false, err
	}
	tracked, err := hasTable(db, "schema_migrations")
	if err != nil || !tracked {
		return !tracked, err
	}
	version, err := appliedVersion(db)
	return version == 0, err
}

// effectiveVersion prepares the tracking table and returns the schema version
// the vault is at. Pre-migration vaults count as version 1; stamp records that.
func effectiveVersion(db *sql.DB, stamp bool) (int, error) {
	preMigration, err := detectPreMigrationDB(db)
	if err != nil {
		return 0, fmt.Errorf("detect pre-migration vault: %w", err)
	}
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}
	if preMigration && stamp {
		if _, err := db.Exec("INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (1, datetime('now'))"); err != nil {
			return 0, fmt.Errorf("stamp pre-migration vault: %w", err)
		}
	}
	version, err := appliedVersion(db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if preMigration && version == 0 {
		version = 1
	}
	return version, nil
}

// runMigrations applies every pending migration, each in its own transaction.
func runMigrations(db *sql.DB) error {
	current, err := effectiveVersion(db, true)
	if err != nil {
		return err
	}
	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m Migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err = tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// MigrationPlan reports schema status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	current, err := effectiveVersion(db, false)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{CurrentVersion: current, Pending: []MigrationInfo{}}
	for _, m := range sortedMigrations() {
		status.AvailableVersion = m.Version
		if m.Version > current {
			status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}
	return status, nil
}

package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Migration represents a schema migration step. Each backend has its own SQL.
type Migration struct {
	Version     int
	Description string
	SQLite      string
	Postgres    string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	Backend          string          `json:"backend" yaml:"backend"`
	CurrentVersion   int             `json:"current_version" yaml:"current_version"`
	AvailableVersion int             `json:"available_version" yaml:"available_version"`
	Pending          []MigrationInfo `json:"pending" yaml:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: posts table",
		SQLite: `
CREATE TABLE IF NOT EXISTS posts (
  body TEXT NOT NULL,
  image BLOB,
  publish_date INTEGER NOT NULL,
  user_name TEXT NOT NULL,
  avatar BLOB
);
`,
		Postgres: `
CREATE TABLE IF NOT EXISTS posts (
  id BIGSERIAL PRIMARY KEY,
  body TEXT NOT NULL,
  image BYTEA,
  publish_date BIGINT NOT NULL,
  user_name TEXT NOT NULL,
  avatar BYTEA
);
`,
	},
	{
		Version:     2,
		Description: "index posts by publish_date",
		SQLite:      `CREATE INDEX IF NOT EXISTS idx_posts_publish_date ON posts(publish_date);`,
		Postgres:    `CREATE INDEX IF NOT EXISTS idx_posts_publish_date ON posts(publish_date);`,
	},
	{
		// Adopted tables may lack an id column; SQLite orders by the implicit rowid instead.
		Version:     3,
		Description: "ensure posts has an identity column",
		Postgres:    `ALTER TABLE posts ADD COLUMN IF NOT EXISTS id BIGSERIAL;`,
	},
}

func (m Migration) sqlFor(d dialect) string {
	if d.name == backendPostgres {
		return m.Postgres
	}
	return m.SQLite
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// detectPreMigrationDB checks if the posts table exists but no migrations have been recorded.
// This is the case for databases created by an external migration tool.
func detectPreMigrationDB(db *sql.DB, d dialect) (bool, error) {
	postsExist, err := tableExists(db, d, "posts")
	if err != nil {
		return false, err
	}
	if !postsExist {
		return false, nil
	}

	migrationsExist, err := tableExists(db, d, "schema_migrations")
	if err != nil {
		return false, err
	}
	if !migrationsExist {
		return true, nil
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func appliedAt() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB, d dialect) error {
	// Detect pre-migration databases BEFORE creating the migrations table.
	preMigration, err := detectPreMigrationDB(db, d)
	if err != nil {
		return fmt.Errorf("detect pre-migration db: %w", err)
	}

	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	if preMigration {
		// The posts table already exists; record version 1 as applied.
		if _, err := db.Exec(d.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?) ON CONFLICT DO NOTHING"), 1, appliedAt()); err != nil {
			return fmt.Errorf("stamp pre-migration db: %w", err)
		}
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if stmt := m.sqlFor(d); strings.TrimSpace(stmt) != "" {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
			}
		}

		if _, err := tx.Exec(d.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"), m.Version, appliedAt()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB, backend string) (*MigrationStatus, error) {
	d := sqliteDialect
	if backend == backendPostgres {
		d = postgresDialect
	}

	// Detect pre-migration databases BEFORE creating the migrations table.
	preMigration, err := detectPreMigrationDB(db, d)
	if err != nil {
		return nil, err
	}

	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	// If pre-migration DB, treat as version 1 for planning purposes.
	effective := current
	if preMigration && effective == 0 {
		effective = 1
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	pending := []MigrationInfo{}
	for _, m := range sorted {
		if m.Version > effective {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		Backend:          d.name,
		CurrentVersion:   effective,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}

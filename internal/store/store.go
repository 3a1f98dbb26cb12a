package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS = 5000

	sqliteMaxOpenConns   = 1
	sqliteMaxIdleConns   = 1
	postgresMaxOpenConns = 10
	postgresMaxIdleConns = 5
	connMaxLifetime      = 5 * time.Minute

	maxOpenConnsEnvKey    = "POSTBOARD_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "POSTBOARD_DB_CONN_MAX_LIFETIME"
)

// ErrSchemaMissing is returned by OpenExisting when the posts table does not exist.
var ErrSchemaMissing = errors.New("posts schema is missing; run migrations first")

// Store wraps the relational database holding posts.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open opens the database named by dsn and applies pending migrations.
func Open(dsn string) (*Store, error) {
	st, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(st.db, st.dialect); err != nil {
		_ = st.db.Close()
		return nil, err
	}
	return st, nil
}

// OpenExisting opens the database without migrating it.
// It fails with ErrSchemaMissing when the posts table has not been created.
func OpenExisting(dsn string) (*Store, error) {
	st, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	exists, err := tableExists(st.db, st.dialect, "posts")
	if err != nil {
		_ = st.db.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}
	if !exists {
		_ = st.db.Close()
		return nil, ErrSchemaMissing
	}
	return st, nil
}

// OpenRaw opens the database handle without touching the schema.
func OpenRaw(dsn string) (*sql.DB, string, error) {
	d, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, "", err
	}
	return db, d.name, nil
}

// Backend reports which database engine the store talks to.
func (s *Store) Backend() string {
	return s.dialect.name
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openDB(dsn string) (*Store, error) {
	d, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d}, nil
}

func configureDB(db *sql.DB, d dialect) error {
	if d.name == backendSQLite {
		pragmas := []string{
			"PRAGMA journal_mode = WAL;",
			"PRAGMA synchronous = NORMAL;",
			fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
		}
		for _, stmt := range pragmas {
			if _, err := db.Exec(stmt); err != nil {
				return err
			}
		}
		db.SetMaxOpenConns(intFromEnv(maxOpenConnsEnvKey, sqliteMaxOpenConns))
		db.SetMaxIdleConns(sqliteMaxIdleConns)
	} else {
		if err := db.Ping(); err != nil {
			return fmt.Errorf("connect %s: %w", d.name, err)
		}
		db.SetMaxOpenConns(intFromEnv(maxOpenConnsEnvKey, postgresMaxOpenConns))
		db.SetMaxIdleConns(postgresMaxIdleConns)
	}
	db.SetConnMaxLifetime(durationFromEnv(connMaxLifetimeEnvKey, connMaxLifetime))
	return nil
}

// resolveDSN picks the backend for a connection string.
// postgres:// and postgresql:// URLs go to pgx; everything else is a SQLite file.
func resolveDSN(dsn string) (dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return dialect{}, "", fmt.Errorf("db connection string is required")
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgresDialect, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		source, err := sqliteDSN(dsn[len("sqlite://"):])
		return sqliteDialect, source, err
	case strings.HasPrefix(lower, "file:"):
		return sqliteDialect, dsn, nil
	default:
		source, err := sqliteDSN(dsn)
		return sqliteDialect, source, err
	}
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

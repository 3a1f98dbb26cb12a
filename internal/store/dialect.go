package store

import (
	"database/sql"
	"strconv"
	"strings"
)

const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

type dialect struct {
	name   string
	driver string
	// idColumn is the implicit row identity used for ordering.
	idColumn string
	// returning reports whether inserts report the new id via RETURNING.
	returning bool
}

var (
	sqliteDialect   = dialect{name: backendSQLite, driver: "sqlite", idColumn: "rowid"}
	postgresDialect = dialect{name: backendPostgres, driver: "pgx", idColumn: "id", returning: true}
)

// rebind rewrites ? placeholders to $N for Postgres.
func (d dialect) rebind(query string) string {
	if d.name != backendPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func tableExists(db *sql.DB, d dialect, name string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if d.name == backendPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name=?"
	}
	var count int
	if err := db.QueryRow(d.rebind(query), name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

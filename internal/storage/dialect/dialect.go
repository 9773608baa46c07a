// Package dialect provides database dialect abstractions for
// multi-database support.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres", "mysql")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	// For example, PostgreSQL uses $1, $2, etc.
	Rebind(query string) string

	// TimestampType returns the SQL type for timestamps
	TimestampType() string

	// TextType returns the SQL type for large text fields
	TextType() string

	// DayBucket returns the SQL expression truncating a timestamp column
	// to its calendar day, for time-bucketed aggregation
	DayBucket(column string) string

	// PragmaStatements returns dialect-specific initialization statements
	// (e.g., PRAGMA for SQLite)
	PragmaStatements() []string
}

// FromDriverName returns the dialect for a given driver name
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return &sqliteDialect{}, nil
	case "postgres", "pgx":
		return &postgresDialect{}, nil
	case "mysql":
		return &mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

// sqliteDialect implements Dialect for SQLite
type sqliteDialect struct{}

func (d *sqliteDialect) Name() string {
	return "sqlite"
}

func (d *sqliteDialect) DriverName() string {
	return "sqlite"
}

func (d *sqliteDialect) Rebind(query string) string {
	return query // SQLite uses ?
}

func (d *sqliteDialect) TimestampType() string {
	return "TIMESTAMP"
}

func (d *sqliteDialect) TextType() string {
	return "TEXT"
}

func (d *sqliteDialect) DayBucket(column string) string {
	// Timestamps are stored as text; the calendar day is the first ten
	// characters regardless of the exact serialization format.
	return fmt.Sprintf("substr(%s, 1, 10)", column)
}

func (d *sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
}

// postgresDialect implements Dialect for PostgreSQL
type postgresDialect struct{}

func (d *postgresDialect) Name() string {
	return "postgres"
}

func (d *postgresDialect) DriverName() string {
	return "pgx"
}

func (d *postgresDialect) Rebind(query string) string {
	// Convert ? placeholders to $1, $2, etc.
	var result strings.Builder
	idx := 1
	for _, ch := range query {
		if ch == '?' {
			result.WriteString(fmt.Sprintf("$%d", idx))
			idx++
		} else {
			result.WriteRune(ch)
		}
	}
	return result.String()
}

func (d *postgresDialect) TimestampType() string {
	return "TIMESTAMP WITH TIME ZONE"
}

func (d *postgresDialect) TextType() string {
	return "TEXT"
}

func (d *postgresDialect) DayBucket(column string) string {
	return fmt.Sprintf("date_trunc('day', %s)::date", column)
}

func (d *postgresDialect) PragmaStatements() []string {
	return nil // PostgreSQL doesn't use pragmas
}

// mysqlDialect implements Dialect for MySQL
type mysqlDialect struct{}

func (d *mysqlDialect) Name() string {
	return "mysql"
}

func (d *mysqlDialect) DriverName() string {
	return "mysql"
}

func (d *mysqlDialect) Rebind(query string) string {
	return query // MySQL uses ?
}

func (d *mysqlDialect) TimestampType() string {
	return "DATETIME(6)"
}

func (d *mysqlDialect) TextType() string {
	return "LONGTEXT"
}

func (d *mysqlDialect) DayBucket(column string) string {
	return fmt.Sprintf("DATE(%s)", column)
}

func (d *mysqlDialect) PragmaStatements() []string {
	return nil
}

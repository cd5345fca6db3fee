package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case "", SQLite:
		return SQLite, nil
	case Postgres, "postgresql":
		return Postgres, nil
	case MySQL:
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported driver: %s", s)
}

// DB wraps the metadata database connection.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return Open(SQLite, dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}

// Open connects to dsn with the given dialect and runs the migrations.
// MySQL DSNs need parseTime=true.
func Open(dialect Dialect, dsn string) (*DB, error) {
	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// SQLite only supports one writer
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Dialect() Dialect { return db.dialect }

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// rebind rewrites ? placeholders for dialects that number them.
func (db *DB) rebind(q string) string {
	if db.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.rebind(q), args...)
}

func (db *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.rebind(q), args...)
}

func (db *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.rebind(q), args...)
}

// types returns the column types for the key, payload and timestamp columns.
func (db *DB) types() (key, payload, ts string) {
	switch db.dialect {
	case Postgres:
		return "VARCHAR(191)", "TEXT", "TIMESTAMPTZ"
	case MySQL:
		return "VARCHAR(191)", "LONGTEXT", "DATETIME(6)"
	}
	return "TEXT", "TEXT", "DATETIME"
}

func (db *DB) migrate(ctx context.Context) error {
	key, payload, ts := db.types()
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id ` + key + ` PRIMARY KEY,
			filename ` + payload + ` NOT NULL,
			total_pages INTEGER NOT NULL DEFAULT 0,
			uploaded_by ` + key + ` NOT NULL,
			storage_key ` + payload + ` NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS annotations (
			user_id ` + key + ` NOT NULL,
			document_id ` + key + ` NOT NULL,
			page_number INTEGER NOT NULL,
			revision BIGINT NOT NULL DEFAULT 0,
			data ` + payload + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			PRIMARY KEY (user_id, document_id, page_number)
		)`,
		`CREATE TABLE IF NOT EXISTS object_links (
			token ` + key + ` PRIMARY KEY,
			object_key ` + payload + ` NOT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			expires_at ` + ts + ` NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reading_positions (
			user_id ` + key + ` NOT NULL,
			document_id ` + key + ` NOT NULL,
			page_number INTEGER NOT NULL DEFAULT 1,
			zoom DOUBLE PRECISION NOT NULL DEFAULT 1,
			updated_at ` + ts + ` NOT NULL,
			PRIMARY KEY (user_id, document_id)
		)`,
		// Agent approvals shared between the standalone MCP process and the server
		`CREATE TABLE IF NOT EXISTS mcp_approvals (
			id ` + key + ` PRIMARY KEY,
			tool ` + key + ` NOT NULL,
			description ` + payload + ` NOT NULL,
			status ` + key + ` NOT NULL DEFAULT 'pending',
			metadata ` + payload + ` NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id ` + key + ` PRIMARY KEY,
			user_id ` + key + ` NOT NULL,
			document_id ` + key + ` NOT NULL,
			page_number INTEGER NOT NULL,
			label ` + payload + ` NOT NULL,
			created_at ` + ts + ` NOT NULL,
			UNIQUE (user_id, document_id, page_number)
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id ` + key + ` PRIMARY KEY,
			user_id ` + key + ` NOT NULL,
			document_id ` + key + ` NOT NULL,
			page_number INTEGER NOT NULL,
			text ` + payload + ` NOT NULL,
			tags ` + payload + ` NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX idx_documents_uploader ON documents(uploaded_by)`,
		`CREATE INDEX idx_notes_document ON notes(user_id, document_id)`,
		// Schema version of the stored payload, added after the first release
		`ALTER TABLE annotations ADD COLUMN schema_version INTEGER NOT NULL DEFAULT 1`,
	}

	for _, m := range migrations {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			// Re-running ALTER TABLE / CREATE INDEX fails once applied; safe to ignore
			if ignorable(m, err) {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}

func ignorable(stmt string, err error) bool {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.HasPrefix(stmt, "ALTER TABLE"):
		return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
	case strings.HasPrefix(stmt, "CREATE INDEX"):
		return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key name")
	}
	return false
}

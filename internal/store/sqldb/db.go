// Package sqldb implements store.ContextStore on SQLite or PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	// Register the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/ecokart/backend/internal/store"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name     string
	schema   []string
	numbered bool
}

func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			title_lower TEXT NOT NULL DEFAULT '',
			summary_lower TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			content_lower TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT 'text',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_context (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			context_type TEXT NOT NULL,
			context_data TEXT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_context_conversation ON conversation_context(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_updated ON conversation(updated_ts)`,
	},
}

var postgresDialect = dialect{
	name:     DriverPostgres,
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			title_lower TEXT NOT NULL DEFAULT '',
			summary_lower TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			content_lower TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT 'text',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_context (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			context_type TEXT NOT NULL,
			context_data TEXT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_context_conversation ON conversation_context(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_updated ON conversation(updated_ts)`,
	},
}

// DB is a database/sql backed context store.
type DB struct {
	db      *sql.DB
	dialect dialect

	clockMu sync.Mutex
	lastTs  int64
}

var _ store.ContextStore = (*DB)(nil)

// Open connects to the database, verifies the connection and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var d dialect
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3":
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case DriverPostgres, "postgresql":
		d = postgresDialect
	default:
		return nil, errors.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", d.name)
	}

	if d.name == DriverSQLite {
		// One connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(2 * time.Hour)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	s := &DB{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("context store ready", "driver", d.name)
	return s, nil
}

// sqliteDSN enables foreign keys so ON DELETE CASCADE applies.
func sqliteDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "ecokart.db"
	}
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range d.dialect.schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// now returns a strictly increasing unix-nanosecond timestamp so ordering by
// time never ties within this process.
func (d *DB) now() int64 {
	d.clockMu.Lock()
	defer d.clockMu.Unlock()

	ts := time.Now().UnixNano()
	if ts <= d.lastTs {
		ts = d.lastTs + 1
	}
	d.lastTs = ts
	return ts
}

func (d *DB) ph(n int) string {
	return d.dialect.placeholder(n)
}

func fromTs(ts int64) time.Time {
	return time.Unix(0, ts).UTC()
}

// fold lower-cases text for the *_lower search columns. SQL LOWER only folds
// ASCII in SQLite, so search text is folded here and matched as stored.
func fold(text string) string {
	return strings.ToLower(text)
}

// likePattern lower-cases query and escapes LIKE wildcards for use with ESCAPE '\'.
func likePattern(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(fold(query)) + "%"
}

// encodeJSON marshals v, substituting empty for nil values.
func encodeJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode json column")
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func decodeMap(raw string) (map[string]any, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode json column")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, errors.Wrap(err, "failed to decode tags")
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}

// touch refreshes updated_ts and reports whether the conversation exists.
func (d *DB) touch(ctx context.Context, tx *sql.Tx, conversationID string, ts int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE conversation SET updated_ts = `+d.ph(1)+` WHERE id = `+d.ph(2), ts, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to touch conversation")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.ErrConversationNotFound
	}
	return nil
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

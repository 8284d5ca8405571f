// Package store – sql.go implements Storage on database/sql. The same schema
// and statements serve SQLite (mattn/go-sqlite3) and PostgreSQL (pgx stdlib);
// only the placeholder style differs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	listen     INTEGER NOT NULL DEFAULT 1,
	notify     INTEGER NOT NULL DEFAULT 1,
	freemode   INTEGER,
	timezone   TEXT NOT NULL DEFAULT '',
	expiration INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	position        INTEGER NOT NULL,
	description     TEXT NOT NULL,
	sender          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	position        INTEGER NOT NULL,
	description     TEXT NOT NULL,
	datetime        TEXT NOT NULL,
	notify          INTEGER NOT NULL DEFAULT 0,
	sender          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_conversation ON tasks(conversation_id, position);
CREATE INDEX IF NOT EXISTS idx_events_conversation ON events(conversation_id, position);
`

// SQLStorage persists the store in relational tables.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenSQLite opens (or creates) a SQLite database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return newSQLStorage(db, DialectSQLite)
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(cfg PostgresConfig) (*SQLStorage, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return newSQLStorage(db, DialectPostgres)
}

func newSQLStorage(db *sql.DB, dialect Dialect) (*SQLStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStorage{db: db, dialect: dialect}, nil
}

// LoadSettings implements Storage.
func (s *SQLStorage) LoadSettings(ctx context.Context, into *Settings) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM settings WHERE key = ?`), "settings").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal([]byte(value), into); err != nil {
		return true, fmt.Errorf("parsing settings: %w: %v", ErrCorrupt, err)
	}
	return true, nil
}

// SaveSettings implements Storage.
func (s *SQLStorage) SaveSettings(ctx context.Context, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		"settings", string(data),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadConversations implements Storage.
func (s *SQLStorage) LoadConversations(ctx context.Context) (map[string]*Conversation, error) {
	out := make(map[string]*Conversation)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listen, notify, freemode, timezone, expiration
		FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	for rows.Next() {
		var (
			id             string
			listen, notify int
			freemode       sql.NullInt64
			timezone       string
			expiration     int
		)
		if err := rows.Scan(&id, &listen, &notify, &freemode, &timezone, &expiration); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c := NewConversation(timezone, false)
		c.Configs.Listen = listen != 0
		c.Configs.Notify = notify != 0
		c.Configs.Expiration = expiration
		if freemode.Valid {
			on := freemode.Int64 != 0
			c.Configs.Freemode = &on
		}
		out[id] = c
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	rows.Close()

	if err := s.loadTasks(ctx, out); err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStorage) loadTasks(ctx context.Context, out map[string]*Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, description, sender
		FROM tasks ORDER BY conversation_id, position`)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Task
		var conversationID string
		if err := rows.Scan(&t.ID, &conversationID, &t.Description, &t.Sender); err != nil {
			return fmt.Errorf("scan task: %w", err)
		}
		if c, ok := out[conversationID]; ok {
			c.Tasks = append(c.Tasks, t)
		}
	}
	return rows.Err()
}

func (s *SQLStorage) loadEvents(ctx context.Context, out map[string]*Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, description, datetime, notify, sender
		FROM events ORDER BY conversation_id, position`)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e              Event
			conversationID string
			datetime       string
		)
		if err := rows.Scan(&e.ID, &conversationID, &e.Description, &datetime, &e.Notify, &e.Sender); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		at, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return fmt.Errorf("event %q datetime: %w: %v", e.ID, ErrCorrupt, err)
		}
		e.Datetime = at.UTC()
		if c, ok := out[conversationID]; ok {
			c.Events = append(c.Events, e)
		}
	}
	return rows.Err()
}

// SaveConversations implements Storage. The snapshot replaces the stored
// rows inside one transaction.
func (s *SQLStorage) SaveConversations(ctx context.Context, snapshot map[string]Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"events", "tasks", "conversations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insertConv := s.rebind(`INSERT INTO conversations (id, listen, notify, freemode, timezone, expiration) VALUES (?, ?, ?, ?, ?, ?)`)
	insertTask := s.rebind(`INSERT INTO tasks (id, conversation_id, position, description, sender) VALUES (?, ?, ?, ?, ?)`)
	insertEvent := s.rebind(`INSERT INTO events (id, conversation_id, position, description, datetime, notify, sender) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for id, c := range snapshot {
		var freemode sql.NullInt64
		if c.Configs.Freemode != nil {
			freemode = sql.NullInt64{Int64: int64(boolToInt(*c.Configs.Freemode)), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertConv,
			id, boolToInt(c.Configs.Listen), boolToInt(c.Configs.Notify), freemode,
			c.Configs.Timezone, c.Configs.Expiration,
		); err != nil {
			return fmt.Errorf("save conversation %q: %w", id, err)
		}
		for i, t := range c.Tasks {
			if _, err := tx.ExecContext(ctx, insertTask, rowID(t.ID, id, "t", i), id, i, t.Description, t.Sender); err != nil {
				return fmt.Errorf("save task: %w", err)
			}
		}
		for i, e := range c.Events {
			if _, err := tx.ExecContext(ctx, insertEvent,
				rowID(e.ID, id, "e", i), id, i, e.Description,
				e.Datetime.UTC().Format(time.RFC3339), e.Notify, e.Sender,
			); err != nil {
				return fmt.Errorf("save event: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close implements Storage.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// ---------- Internal ----------

// rebind converts ? placeholders to $N for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rowID keeps legacy items without an ID unique within the table.
func rowID(id, conversationID, kind string, position int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s:%s:%d", conversationID, kind, position)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

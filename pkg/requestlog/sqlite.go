package requestlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mockenv/mockenv/pkg/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS request_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	ts INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	route_uuid TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 0,
	has_error INTEGER NOT NULL DEFAULT 0,
	proxied INTEGER NOT NULL DEFAULT 0,
	entry TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_log_ts ON request_log(ts);
CREATE INDEX IF NOT EXISTS idx_request_log_route ON request_log(route_uuid);
`

// SQLiteStore persists entries in a SQLite database. The full entry is
// stored as JSON next to the indexed filter columns.
type SQLiteStore struct {
	db     *sql.DB
	log    *slog.Logger
	nextID atomic.Int64
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if log == nil {
		log = logging.Nop()
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, log: logging.Component(log, "requestlog")}
	var maxSeq sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(seq) FROM request_log`).Scan(&maxSeq); err == nil {
		s.nextID.Store(maxSeq.Int64)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Log inserts entry. Failures are logged, not returned.
func (s *SQLiteStore) Log(entry *Entry) {
	if entry == nil {
		return
	}
	stamp(entry, s.nextID.Add(1))
	data, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn("failed to encode request log entry", "error", err)
		return
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO request_log (id, ts, protocol, method, path, route_uuid, status, has_error, proxied, entry)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixNano(), entry.Protocol, entry.Method, entry.Path, entry.RouteUUID,
		entry.ResponseStatus, boolInt(entry.Error != ""), boolInt(entry.Proxied), string(data))
	if err != nil {
		s.log.Warn("failed to store request log entry", "id", entry.ID, "error", err)
	}
}

func decodeEntry(data string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Get retrieves a log entry by ID.
func (s *SQLiteStore) Get(id string) *Entry {
	var data string
	if err := s.db.QueryRow(`SELECT entry FROM request_log WHERE id = ?`, id).Scan(&data); err != nil {
		return nil
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil
	}
	return e
}

// List returns entries newest first.
func (s *SQLiteStore) List(filter *Filter) []*Entry {
	var (
		where []string
		args  []any
	)
	if filter != nil {
		if filter.Protocol != "" {
			where = append(where, "protocol = ?")
			args = append(args, filter.Protocol)
		}
		if filter.Method != "" {
			where = append(where, "method = ? COLLATE NOCASE")
			args = append(args, filter.Method)
		}
		if filter.Path != "" {
			where = append(where, "substr(path, 1, ?) = ?")
			args = append(args, len(filter.Path), filter.Path)
		}
		if filter.RouteUUID != "" {
			where = append(where, "route_uuid = ?")
			args = append(args, filter.RouteUUID)
		}
		if filter.StatusCode != 0 {
			where = append(where, "status = ?")
			args = append(args, filter.StatusCode)
		}
		if filter.HasError != nil {
			where = append(where, "has_error = ?")
			args = append(args, boolInt(*filter.HasError))
		}
		if filter.Proxied != nil {
			where = append(where, "proxied = ?")
			args = append(args, boolInt(*filter.Proxied))
		}
	}

	query := `SELECT entry FROM request_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.log.Warn("failed to query request log", "error", err)
		return []*Entry{}
	}
	defer func() { _ = rows.Close() }()

	out := []*Entry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		if e, err := decodeEntry(data); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Clear removes all log entries.
func (s *SQLiteStore) Clear() {
	if _, err := s.db.Exec(`DELETE FROM request_log`); err != nil {
		s.log.Warn("failed to clear request log", "error", err)
	}
}

// Count returns the number of log entries.
func (s *SQLiteStore) Count() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM request_log`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Prune deletes entries older than olderThan.
func (s *SQLiteStore) Prune(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM request_log WHERE ts < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune request log: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Package journal records reload events in a SQLite database.
//
// A Journal is a reload.Listener: register it with reload.WithListener and
// every finished Apply becomes one row.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chazu/hotswap/reload"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("hotswap.journal")

// ErrNotFound indicates no entry matched.
var ErrNotFound = errors.New("journal: no entry")

// Entry is one journal row.
type Entry struct {
	ID      int64
	Scope   string
	Type    string
	Tag     string
	Seq     int
	Outcome string
	Summary string
	Reasons []string
	Error   string
	At      time.Time
}

// Journal handles SQLite storage of reload events.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

var schema = []string{`CREATE TABLE IF NOT EXISTS reloads (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	scope   TEXT NOT NULL,
	type    TEXT NOT NULL,
	tag     TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	summary TEXT NOT NULL,
	reasons TEXT NOT NULL,
	error   TEXT NOT NULL,
	at      INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS reloads_type ON reloads (scope, type, id)`,
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}
	return &Journal{db: db, path: path}, nil
}

// Path returns the database path.
func (j *Journal) Path() string { return j.path }

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Reloaded implements reload.Listener. Write failures are logged.
func (j *Journal) Reloaded(e reload.Event) {
	if _, err := j.Record(context.Background(), e); err != nil {
		log.Errorf("%s: %s", e.Type, err)
	}
}

// Record appends e and returns its row id.
func (j *Journal) Record(ctx context.Context, e reload.Event) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var summary, reasons, errText string
	if e.Record != nil {
		summary = e.Record.String()
		reasons = strings.Join(e.Record.Reasons, "\n")
	}
	if e.Err != nil {
		errText = e.Err.Error()
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO reloads (scope, type, tag, seq, outcome, summary, reasons, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Scope, e.Type, e.Tag, e.Seq, e.Outcome.String(), summary, reasons, errText, at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("recording reload: %w", err)
	}
	return res.LastInsertId()
}

// Entries returns the entries of a type in a scope, oldest first. An empty
// typeName lists every type of the scope.
func (j *Journal) Entries(ctx context.Context, scope, typeName string) ([]Entry, error) {
	q := `SELECT id, scope, type, tag, seq, outcome, summary, reasons, error, at
	      FROM reloads WHERE scope = ?`
	args := []any{scope}
	if typeName != "" {
		q += " AND type = ?"
		args = append(args, typeName)
	}
	rows, err := j.db.QueryContext(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastApplied returns the newest applied entry of a type.
func (j *Journal) LastApplied(ctx context.Context, scope, typeName string) (Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, scope, type, tag, seq, outcome, summary, reasons, error, at
		 FROM reloads WHERE scope = ? AND type = ? AND outcome = ?
		 ORDER BY id DESC LIMIT 1`,
		scope, typeName, reload.Applied.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		reasons string
		at      int64
	)
	err := s.Scan(&e.ID, &e.Scope, &e.Type, &e.Tag, &e.Seq, &e.Outcome, &e.Summary, &reasons, &e.Error, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("reading journal entry: %w", err)
	}
	if reasons != "" {
		e.Reasons = strings.Split(reasons, "\n")
	}
	e.At = time.Unix(0, at)
	return e, nil
}

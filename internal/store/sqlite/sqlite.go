package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/sasswatch/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

var _ store.Store = (*DB)(nil)

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watch_dirs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dir TEXT NOT NULL UNIQUE,
			added_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watch_state(
			dir TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			target TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) AddDir(ctx context.Context, dir string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_dirs(dir, added_at) VALUES(?, ?)
		ON CONFLICT(dir) DO NOTHING;`, dir, time.Now().UTC())
	return err
}

func (s *DB) RemoveDir(ctx context.Context, dir string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watch_dirs WHERE dir=?;`, dir)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, dir)
	}
	return nil
}

func (s *DB) ListDirs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dir FROM watch_dirs ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DB) RecordWatch(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_state(dir, pid, target, started_at, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			pid=excluded.pid,
			target=excluded.target,
			started_at=excluded.started_at,
			updated_at=excluded.updated_at;`,
		rec.Dir, rec.PID, rec.Target, rec.StartedAt.UTC(), rec.UpdatedAt)
	return err
}

func (s *DB) DeleteWatch(ctx context.Context, dir string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watch_state WHERE dir=?;`, dir)
	return err
}

func (s *DB) ListWatches(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dir, pid, target, started_at, updated_at
		FROM watch_state
		ORDER BY dir;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.Dir, &r.PID, &r.Target, &r.StartedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

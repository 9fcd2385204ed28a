package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/sasswatch/internal/store"
)

type DB struct {
	db *sql.DB
}

var _ store.Store = (*DB)(nil)

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watch_dirs(
			id BIGSERIAL PRIMARY KEY,
			dir TEXT NOT NULL UNIQUE,
			added_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watch_state(
			dir TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			target TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) AddDir(ctx context.Context, dir string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO watch_dirs(dir, added_at) VALUES($1, $2)
		ON CONFLICT(dir) DO NOTHING;`, dir, time.Now().UTC())
	return err
}

func (p *DB) RemoveDir(ctx context.Context, dir string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM watch_dirs WHERE dir=$1;`, dir)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, dir)
	}
	return nil
}

func (p *DB) ListDirs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT dir FROM watch_dirs ORDER BY id;`)
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

func (p *DB) RecordWatch(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO watch_state(dir, pid, target, started_at, updated_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT(dir) DO UPDATE SET
			pid=EXCLUDED.pid,
			target=EXCLUDED.target,
			started_at=EXCLUDED.started_at,
			updated_at=EXCLUDED.updated_at;`,
		rec.Dir, rec.PID, rec.Target, rec.StartedAt.UTC(), rec.UpdatedAt)
	return err
}

func (p *DB) DeleteWatch(ctx context.Context, dir string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM watch_state WHERE dir=$1;`, dir)
	return err
}

func (p *DB) ListWatches(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
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

package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// SQLDialect is what one database/sql driver needs to store watch history.
// Insert takes, in order: occurred_at, event, dir, pid, target, started_at,
// error (NULL when empty).
type SQLDialect struct {
	Driver   string
	Schema   []string
	Insert   string
	MaxConns int
}

// SQLSink appends events to the watch_history table.
type SQLSink struct {
	db     *sql.DB
	insert string
}

// OpenSQLSink opens dsn with the dialect's driver and creates the schema.
func OpenSQLSink(ctx context.Context, d SQLDialect, dsn string) (*SQLSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty " + d.Driver + " DSN")
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.MaxConns > 0 {
		db.SetMaxOpenConns(d.MaxConns)
	}
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLSink{db: db, insert: d.Insert}, nil
}

// DB exposes the handle for queries over the history table.
func (s *SQLSink) DB() *sql.DB { return s.db }

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	var started sql.NullTime
	if !e.Record.StartedAt.IsZero() {
		started = sql.NullTime{Time: e.Record.StartedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.insert,
		e.OccurredAt.UTC(), string(e.Type), e.Record.Dir, e.Record.PID, e.Record.Target, started, errText)
	return err
}

func (s *SQLSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

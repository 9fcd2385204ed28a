// Package sqlite stores watch history in a SQLite file (modernc.org/sqlite).
package sqlite

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/sasswatch/internal/history"
)

var dialect = history.SQLDialect{
	Driver: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS watch_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			dir TEXT NOT NULL,
			pid INTEGER NOT NULL,
			target TEXT NOT NULL,
			started_at TIMESTAMP NULL,
			error TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_history_dir ON watch_history(dir, occurred_at)`,
	},
	Insert: `INSERT INTO watch_history(occurred_at, event, dir, pid, target, started_at, error)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
	// :memory: databases are per connection.
	MaxConns: 1,
}

// New opens "sqlite:///path/file.db", "/path/file.db" or ":memory:".
func New(dsn string) (*history.SQLSink, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	return history.OpenSQLSink(context.Background(), dialect, dsn)
}

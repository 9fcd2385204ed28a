package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/sasswatch/internal/history"
	"github.com/loykin/sasswatch/internal/store"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	rec := store.Record{
		Dir:       "/project/scss",
		PID:       12345,
		Target:    "/project/css",
		StartedAt: time.Now().Add(-time.Minute).UTC(),
	}

	events := []history.Event{
		{Type: history.EventLaunched, OccurredAt: time.Now().UTC(), Record: rec},
		{Type: history.EventCleared, OccurredAt: time.Now().UTC(), Record: rec},
		{Type: history.EventLaunchFailed, OccurredAt: time.Now().UTC(), Record: store.Record{Dir: "/project/broken"}, Error: "process killed"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_history WHERE dir = ?`, rec.Dir).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows for %s, got %d", rec.Dir, count)
	}

	var errText sql.NullString
	var pid int
	if err := sink.DB().QueryRowContext(ctx, `SELECT pid, error FROM watch_history WHERE event = ?`, string(history.EventLaunchFailed)).Scan(&pid, &errText); err != nil {
		t.Fatalf("query failed event: %v", err)
	}
	if pid != 0 || !errText.Valid || errText.String != "process killed" {
		t.Fatalf("unexpected failed row pid=%d err=%v", pid, errText)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{Type: history.EventLaunched, OccurredAt: time.Now().UTC(), Record: store.Record{Dir: "/m", PID: 1}}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}

	var count int
	if err := sink.DB().QueryRow(`SELECT COUNT(*) FROM watch_history`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := New("sqlite://"); err == nil {
		t.Fatal("expected error for empty path after prefix")
	}
}

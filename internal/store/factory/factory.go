package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/sasswatch/internal/store"
	pg "github.com/loykin/sasswatch/internal/store/postgres"
	sq "github.com/loykin/sasswatch/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite://<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	switch {
	case ld == "":
		return nil, errors.New("empty DSN")
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	case strings.Contains(ld, "://"):
		return nil, fmt.Errorf("unsupported store DSN %q", dsn)
	}
	return sq.New(d)
}

// Open is NewFromDSN followed by EnsureSchema.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	st, err := NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return st, nil
}

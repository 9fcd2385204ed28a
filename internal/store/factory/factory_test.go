package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pg "github.com/loykin/sasswatch/internal/store/postgres"
	sq "github.com/loykin/sasswatch/internal/store/sqlite"
)

func TestFactoryDSNSelection(t *testing.T) {
	// Empty DSN -> error
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	// postgres scheme -> postgres driver object (Close immediately; no connect performed by sql.Open)
	p, err := NewFromDSN("postgres://user@localhost/db")
	require.NoError(t, err)
	assert.IsType(t, &pg.DB{}, p)
	_ = p.Close()

	s1, err := NewFromDSN("sqlite://:memory:")
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s1)
	_ = s1.Close()

	// bare path defaults to sqlite
	s2, err := NewFromDSN(":memory:")
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s2)
	_ = s2.Close()

	_, err = NewFromDSN("redis://localhost")
	assert.Error(t, err)
}

func TestOpenCreatesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := Open(ctx, "sqlite://"+path)
	require.NoError(t, err)
	require.NoError(t, st.AddDir(ctx, "/p/scss"))
	require.NoError(t, st.Close())

	// reopening keeps data
	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	dirs, err := st.ListDirs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/scss"}, dirs)
}

// Package storetest holds behaviour checks shared by store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sasswatch/internal/store"
)

// Run exercises st, which must have its schema in place and be empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("dirs", func(t *testing.T) {
		require.NoError(t, st.AddDir(ctx, "/p/b"))
		require.NoError(t, st.AddDir(ctx, "/p/a"))
		require.NoError(t, st.AddDir(ctx, "/p/b"), "re-adding is a no-op")
		require.NoError(t, st.AddDir(ctx, "/p/c"))

		dirs, err := st.ListDirs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/p/b", "/p/a", "/p/c"}, dirs)

		require.NoError(t, st.RemoveDir(ctx, "/p/a"))
		assert.ErrorIs(t, st.RemoveDir(ctx, "/p/a"), store.ErrNotFound)

		dirs, err = st.ListDirs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/p/b", "/p/c"}, dirs)
	})

	t.Run("watches", func(t *testing.T) {
		started := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
		require.NoError(t, st.RecordWatch(ctx, store.Record{Dir: "/p/scss", PID: 101, Target: "/p/css", StartedAt: started}))
		require.NoError(t, st.RecordWatch(ctx, store.Record{Dir: "/p/admin", PID: 102, Target: "/p/admin", StartedAt: started}))
		// upsert replaces
		require.NoError(t, st.RecordWatch(ctx, store.Record{Dir: "/p/scss", PID: 201, Target: "/p/css", StartedAt: started}))

		recs, err := st.ListWatches(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "/p/admin", recs[0].Dir)
		assert.Equal(t, "/p/scss", recs[1].Dir)
		assert.Equal(t, 201, recs[1].PID)
		assert.Equal(t, "/p/css", recs[1].Target)
		assert.True(t, recs[1].StartedAt.Equal(started), "started_at round trips: %v vs %v", recs[1].StartedAt, started)
		assert.False(t, recs[1].UpdatedAt.IsZero())

		require.NoError(t, st.DeleteWatch(ctx, "/p/scss"))
		require.NoError(t, st.DeleteWatch(ctx, "/p/missing"))
		recs, err = st.ListWatches(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "/p/admin", recs[0].Dir)
	})
}

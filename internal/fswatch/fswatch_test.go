package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor drains events until one matches or the deadline passes.
func waitFor(t *testing.T, h Handle, kind Kind, path string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			require.True(t, ok, "event channel closed while waiting for %s %s", kind, path)
			if ev.Kind == kind && ev.Path == path {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, path)
		}
	}
}

func TestNotify_FileLifecycle(t *testing.T) {
	dir := t.TempDir()
	h, err := Notify{}.Watch(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	f := filepath.Join(dir, "styles.css")
	require.NoError(t, os.WriteFile(f, []byte("a{}"), 0o644))
	waitFor(t, h, Added, f)

	// a write to an existing file
	fh, err := os.OpenFile(f, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = fh.WriteString("b{}")
	require.NoError(t, err)
	require.NoError(t, fh.Close())
	waitFor(t, h, Changed, f)

	require.NoError(t, os.Remove(f))
	waitFor(t, h, Removed, f)
}

func TestNotify_NestedDirectories(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "themes")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	h, err := Notify{}.Watch(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	f := filepath.Join(existing, "dark.css")
	require.NoError(t, os.WriteFile(f, []byte("a{}"), 0o644))
	waitFor(t, h, Added, f)

	fresh := filepath.Join(dir, "new", "deeper")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	g := filepath.Join(fresh, "light.css")
	// give the watcher a moment to attach to the new tree
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(g, []byte("a{}"), 0o644))
	waitFor(t, h, Added, g)
}

func TestNotify_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "css", "out")
	h, err := Notify{}.Watch(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestNotify_CloseEndsStream(t *testing.T) {
	h, err := Notify{Buffer: 1}.Watch(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "close is idempotent")

	select {
	case _, ok := <-h.Events():
		for ok {
			_, ok = <-h.Events()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed")
	}
}

func TestNotify_CancelledAttach(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Notify{}.Watch(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "added", Added.String())
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/sasswatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sasswatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, sasswatch.DefaultConfig(), cfg)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestOutcomeViews(t *testing.T) {
	views := outcomeViews([]sasswatch.Outcome{
		{Dir: "a", Message: "Launched css watchers"},
		{Dir: "b", Err: errors.New("boom")},
	})
	require.Len(t, views, 2)
	assert.Equal(t, "Launched css watchers", views[0].Message)
	assert.Empty(t, views[0].Error)
	assert.Equal(t, "boom", views[1].Error)
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	path := writeConfig(t, "listen = \"127.0.0.1:0\"\nproject_root = \".\"\n")
	pidFile := filepath.Join(t.TempDir(), "serve.pid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, path, &ServeFlags{PidFile: pidFile}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(pidFile)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	_, err := os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err), "pid file should be removed on exit")
}

func TestRunWatch_NoDirs(t *testing.T) {
	path := writeConfig(t, "project_root = \".\"\n")
	err := runWatch(context.Background(), &bytes.Buffer{}, path, &WatchFlags{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no directories to watch")
}

func TestRunWatch_BadSettings(t *testing.T) {
	err := runWatch(context.Background(), &bytes.Buffer{}, "", &WatchFlags{Settings: filepath.Join(t.TempDir(), "nope.json")}, []string{"scss"})
	require.Error(t, err)
}

//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSass writes an executable shell script standing in for the compiler.
func fakeSass(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sass")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func request(t *testing.T, bin string, pause int) WatchRequest {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "scss")
	require.NoError(t, os.MkdirAll(src, 0o755))
	cfg := config.DefaultCompiler()
	cfg.SassBinPath = bin
	cfg.PauseInterval = pause
	return WatchRequest{SourceDir: src, ProjectRoot: root, Config: cfg}
}

func TestStartWatch_LongRunning(t *testing.T) {
	l := NewSassLauncher(WithKillGrace(time.Second))
	req := request(t, fakeSass(t, "exec sleep 30"), 50)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	require.Greater(t, res.PID, 0)
	assert.False(t, res.Killed)
	assert.True(t, l.Alive(res.PID))

	running := l.Running()
	require.Len(t, running, 1)
	assert.Equal(t, res.PID, running[0].PID)
	assert.Equal(t, req.SourceDir, running[0].SourceDir)
	assert.True(t, running[0].Running)

	require.NoError(t, l.Kill(res.PID))
	assert.Eventually(t, func() bool { return !l.Alive(res.PID) }, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return len(l.Running()) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestStartWatch_PassesArguments(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	l := NewSassLauncher()
	req := request(t, fakeSass(t, `echo "$@" > `+out+`; exec sleep 30`), 100)
	req.Compressed = true

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	defer func() { _ = l.Kill(res.PID) }()

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(out)
		return err == nil && len(b) > 0
	}, 2*time.Second, 20*time.Millisecond)
	b, _ := os.ReadFile(out)
	args := strings.Fields(string(b))
	assert.Equal(t, []string{"--watch", "--style=compressed", req.SourceDir + ":" + req.SourceDir}, args)
}

func TestStartWatch_ExitsInsideWindow(t *testing.T) {
	l := NewSassLauncher()
	req := request(t, fakeSass(t, "exit 3"), 1000)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PID)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Killed)
}

func TestStartWatch_KilledInsideWindow(t *testing.T) {
	l := NewSassLauncher()
	req := request(t, fakeSass(t, "kill -9 $$"), 1000)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Killed)
}

func TestStartWatch_MissingBinary(t *testing.T) {
	l := NewSassLauncher()
	req := request(t, filepath.Join(t.TempDir(), "no-such-sass"), 10)
	_, err := l.StartWatch(context.Background(), req)
	assert.Error(t, err)
	assert.Empty(t, l.Running())
}

func TestStartWatch_ContextCancelled(t *testing.T) {
	l := NewSassLauncher()
	req := request(t, fakeSass(t, "exec sleep 30"), 10_000)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := l.StartWatch(ctx, req)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Eventually(t, func() bool { return len(l.Running()) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestStartWatch_WritesLogFiles(t *testing.T) {
	logDir := t.TempDir()
	l := NewSassLauncher(WithLogs(logger.Config{File: logger.FileConfig{Dir: logDir}}))
	req := request(t, fakeSass(t, "echo compiled; echo broken >&2; exec sleep 30"), 200)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, l.Kill(res.PID))
	require.Eventually(t, func() bool { return len(l.Running()) == 0 }, 5*time.Second, 20*time.Millisecond)

	name := logger.SafeName(req.SourceDir)
	stdout, err := os.ReadFile(filepath.Join(logDir, name+".stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "compiled")
	stderr, err := os.ReadFile(filepath.Join(logDir, name+".stderr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(stderr), "broken")
}

func TestKill_EscalatesWhenTermIgnored(t *testing.T) {
	l := NewSassLauncher(WithKillGrace(200 * time.Millisecond))
	req := request(t, fakeSass(t, "trap '' TERM; while true; do sleep 1; done"), 200)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, l.Kill(res.PID))
	assert.Eventually(t, func() bool { return !l.Alive(res.PID) }, 5*time.Second, 50*time.Millisecond)
}

func TestKill_InvalidPID(t *testing.T) {
	l := NewSassLauncher()
	assert.ErrorIs(t, l.Kill(0), ErrInvalidPID)
	assert.False(t, l.Alive(-1))
}

func TestShutdown(t *testing.T) {
	l := NewSassLauncher()
	for i := 0; i < 2; i++ {
		_, err := l.StartWatch(context.Background(), request(t, fakeSass(t, "exec sleep 30"), 20))
		require.NoError(t, err)
	}
	require.Len(t, l.Running(), 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	assert.Eventually(t, func() bool { return len(l.Running()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestIsWatchFor(t *testing.T) {
	l := NewSassLauncher(WithKillGrace(time.Second))
	req := request(t, fakeSass(t, "while true; do sleep 1; done"), 50)

	res, err := l.StartWatch(context.Background(), req)
	require.NoError(t, err)
	defer func() { _ = l.Kill(res.PID) }()

	assert.True(t, IsWatchFor(res.PID, req.SourceDir))
	assert.False(t, IsWatchFor(res.PID, filepath.Join(req.ProjectRoot, "other")))
	assert.False(t, IsWatchFor(os.Getpid(), req.SourceDir))
	assert.False(t, IsWatchFor(0, req.SourceDir))
}

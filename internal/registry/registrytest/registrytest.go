// Package registrytest provides in-memory collaborators for exercising the
// registry without spawning compilers or touching the filesystem.
package registrytest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/fswatch"
	"github.com/loykin/sasswatch/internal/process"
)

// FirstPID is the pid handed out by the first successful StartWatch.
const FirstPID = 101

// Launcher hands out increasing pids unless Results or Errs name the
// source directory.
type Launcher struct {
	Results map[string]process.Result
	Errs    map[string]error
	KillErr error
	// Delay is waited out inside StartWatch, honouring ctx.
	Delay time.Duration

	mu      sync.Mutex
	next    int
	started []process.WatchRequest
	killed  []int
}

func (l *Launcher) StartWatch(ctx context.Context, req process.WatchRequest) (process.Result, error) {
	if l.Delay > 0 {
		t := time.NewTimer(l.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return process.Result{}, ctx.Err()
		case <-t.C:
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, req)
	if err, ok := l.Errs[req.SourceDir]; ok {
		return process.Result{}, err
	}
	if res, ok := l.Results[req.SourceDir]; ok {
		return res, nil
	}
	if l.next == 0 {
		l.next = FirstPID
	}
	pid := l.next
	l.next++
	return process.Result{PID: pid}, nil
}

func (l *Launcher) Kill(pid int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.killed = append(l.killed, pid)
	return l.KillErr
}

func (l *Launcher) Started() []process.WatchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.started)
}

func (l *Launcher) StartedDirs() []string {
	var out []string
	for _, r := range l.Started() {
		out = append(out, r.SourceDir)
	}
	return out
}

func (l *Launcher) Killed() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.killed)
}

// Handle is a watcher handle whose events are pushed by the test.
type Handle struct {
	Dir string

	mu     sync.Mutex
	events chan fswatch.Event
	closes int
}

func NewHandle(dir string) *Handle {
	return &Handle{Dir: dir, events: make(chan fswatch.Event, 16)}
}

func (h *Handle) Events() <-chan fswatch.Event { return h.events }

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closes == 1 {
		close(h.events)
	}
	return nil
}

// Emit delivers ev unless the handle is closed.
func (h *Handle) Emit(ev fswatch.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closes > 0 {
		return false
	}
	h.events <- ev
	return true
}

func (h *Handle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Watchers records every attach and fails them all when Err is set.
type Watchers struct {
	Err error

	mu      sync.Mutex
	handles []*Handle
}

func (w *Watchers) Watch(_ context.Context, dir string) (fswatch.Handle, error) {
	if w.Err != nil {
		return nil, w.Err
	}
	h := NewHandle(dir)
	w.mu.Lock()
	w.handles = append(w.handles, h)
	w.mu.Unlock()
	return h, nil
}

func (w *Watchers) Handles() []*Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.handles)
}

// Pipeline records the events it is given.
type Pipeline struct {
	mu     sync.Mutex
	runs   int
	events []fswatch.Event
}

func (p *Pipeline) Run(ctx context.Context, _ config.Compiler, events <-chan fswatch.Event) {
	p.mu.Lock()
	p.runs++
	p.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.mu.Lock()
			p.events = append(p.events, ev)
			p.mu.Unlock()
		}
	}
}

func (p *Pipeline) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *Pipeline) Events() []fswatch.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

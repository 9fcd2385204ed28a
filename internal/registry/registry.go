// Package registry owns the live watches: one sass compile process and one
// filesystem watcher per canonical source directory.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/fswatch"
	"github.com/loykin/sasswatch/internal/history"
	"github.com/loykin/sasswatch/internal/process"
	"github.com/loykin/sasswatch/internal/store"
	"github.com/loykin/sasswatch/internal/target"
	"github.com/loykin/sasswatch/internal/watchlist"
)

// LaunchedMessage is returned by a successful Launch.
const LaunchedMessage = "Launched css watchers"

var (
	ErrDuplicateWatch      = errors.New("already being watched")
	ErrProcessLaunchFailed = errors.New("unable to launch sass watcher")
	ErrInvalidProcessID    = errors.New("pid is undefined")
	ErrWatcherFailed       = errors.New("unable to watch compiled css in")
	ErrClosed              = errors.New("registry is shut down")
)

// Entry is one live watch.
type Entry struct {
	PID       int            `json:"pid"`
	Watcher   fswatch.Handle `json:"-"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	StartedAt time.Time      `json:"started_at"`
}

func (e *Entry) record() store.Record {
	return store.Record{Dir: e.Source, PID: e.PID, Target: e.Target, StartedAt: e.StartedAt, UpdatedAt: time.Now().UTC()}
}

// EventSink consumes the compiled-css events of one watch until the
// channel closes or ctx is done.
type EventSink interface {
	Run(ctx context.Context, cfg config.Compiler, events <-chan fswatch.Event)
}

// Outcome is the result of launching one pending directory.
type Outcome struct {
	Dir     string `json:"dir"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

type Options struct {
	Launcher process.Launcher
	Watchers fswatch.Starter
	Pipeline EventSink
	// Pending is the list Relaunch walks. Without it Relaunch uses the
	// watch_directories of the config it is given.
	Pending *watchlist.List
	History history.Sink
	Logger  *slog.Logger
	// Compressed starts the compiler with --style=compressed.
	Compressed bool
}

type Registry struct {
	launcher   process.Launcher
	watchers   fswatch.Starter
	pipeline   EventSink
	pending    *watchlist.List
	hist       history.Sink
	log        *slog.Logger
	compressed bool

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int64

	mu       sync.Mutex
	handlers map[string]*dirHandler
	closed   bool
}

func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		launcher:   opts.Launcher,
		watchers:   opts.Watchers,
		pipeline:   opts.Pipeline,
		pending:    opts.Pending,
		hist:       opts.History,
		log:        log,
		compressed: opts.Compressed,
		ctx:        ctx,
		cancel:     cancel,
		handlers:   make(map[string]*dirHandler),
	}
}

// Pending returns the list Relaunch walks, nil when none was configured.
func (r *Registry) Pending() *watchlist.List { return r.pending }

// acquire pins the handler for dir until release, creating it when create
// is set. It returns nil once the registry is closed or when dir has no
// handler and create is unset.
func (r *Registry) acquire(dir string, create bool) *dirHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	h, ok := r.handlers[dir]
	if !ok {
		if !create {
			return nil
		}
		h = newDirHandler(r, dir)
		r.handlers[dir] = h
		go h.run(r.ctx)
	}
	h.refs++
	return h
}

// release unpins h. A handler nobody holds and that owns no entry is
// removed from the map and its goroutine stopped; the next acquire for the
// same dir starts a fresh one.
func (r *Registry) release(h *dirHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.refs--
	if h.refs > 0 || h.current() != nil || r.handlers[h.dir] != h {
		return
	}
	delete(r.handlers, h.dir)
	close(h.quit)
}

// pinAll acquires every handler that currently owns an entry.
func (r *Registry) pinAll() []*dirHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*dirHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		if h.current() == nil {
			continue
		}
		h.refs++
		out = append(out, h)
	}
	return out
}

func (r *Registry) allHandlers() []*dirHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*dirHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	return out
}

func (r *Registry) send(h *dirHandler, msg ctrlMsg) ctrlReply {
	msg.reply = make(chan ctrlReply, 1)
	select {
	case h.ctrl <- msg:
	case <-r.ctx.Done():
		return ctrlReply{err: ErrClosed}
	}
	select {
	case rep := <-msg.reply:
		return rep
	case <-r.ctx.Done():
		return ctrlReply{err: ErrClosed}
	}
}

// Launch starts a compile watch for sourceDir, resolved against
// projectRoot, and attaches the minification pipeline to its output tree.
func (r *Registry) Launch(ctx context.Context, sourceDir, projectRoot string, cfg config.Compiler) (string, error) {
	dir := target.Resolve(projectRoot, sourceDir)
	h := r.acquire(dir, true)
	if h == nil {
		return "", ErrClosed
	}
	defer r.release(h)
	rep := r.send(h, ctrlMsg{typ: ctrlLaunch, ctx: ctx, projectRoot: projectRoot, cfg: cfg})
	return rep.msg, rep.err
}

// ClearOne tears down the watch keyed by the canonical path dir. It always
// reports true; clearing an unwatched directory is a no-op.
func (r *Registry) ClearOne(dir string) bool {
	h := r.acquire(dir, false)
	if h == nil {
		r.log.Info("Trying to unwatch " + dir + ". But no watcher launched earlier")
		return true
	}
	r.send(h, ctrlMsg{typ: ctrlClear})
	r.release(h)
	return true
}

// Clear resolves sourceDir against projectRoot and clears it.
func (r *Registry) Clear(sourceDir, projectRoot string) bool {
	return r.ClearOne(target.Resolve(projectRoot, sourceDir))
}

// ClearAll tears down every entry and returns once all of them are gone.
func (r *Registry) ClearAll() {
	var g errgroup.Group
	for _, h := range r.pinAll() {
		g.Go(func() error {
			r.send(h, ctrlMsg{typ: ctrlClear})
			r.release(h)
			return nil
		})
	}
	_ = g.Wait()
}

// RelaunchAsync clears every watch, then starts a launch for each pending
// directory without waiting for any of them. The returned channels are in
// list order and each delivers exactly one Outcome.
func (r *Registry) RelaunchAsync(ctx context.Context, projectRoot string, cfg config.Compiler) []<-chan Outcome {
	r.ClearAll()

	dirs := cfg.WatchDirectories
	if r.pending != nil {
		dirs = r.pending.List()
	}
	out := make([]<-chan Outcome, len(dirs))
	for i, d := range dirs {
		ch := make(chan Outcome, 1)
		out[i] = ch
		go func() {
			msg, err := r.Launch(ctx, d, projectRoot, cfg)
			if err != nil {
				r.log.Error("relaunch", "dir", d, "error", err)
			}
			ch <- Outcome{Dir: d, Message: msg, Err: err}
		}()
	}
	return out
}

// Relaunch is RelaunchAsync plus collecting every outcome. Failures are
// isolated and reported per directory, in list order.
func (r *Registry) Relaunch(ctx context.Context, projectRoot string, cfg config.Compiler) []Outcome {
	pending := r.RelaunchAsync(ctx, projectRoot, cfg)
	outcomes := make([]Outcome, len(pending))
	for i, ch := range pending {
		outcomes[i] = <-ch
	}
	return outcomes
}

// Snapshot returns a copy of the live entries keyed by canonical path.
func (r *Registry) Snapshot() map[string]Entry {
	out := make(map[string]Entry)
	for _, h := range r.allHandlers() {
		if e := h.current(); e != nil {
			out[h.dir] = *e
		}
	}
	return out
}

// Dirs returns the watched canonical paths, sorted.
func (r *Registry) Dirs() []string {
	snap := r.Snapshot()
	out := make([]string, 0, len(snap))
	for d := range snap {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// PIDs maps each watched directory to its compiler pid.
func (r *Registry) PIDs() map[string]int {
	out := make(map[string]int)
	for d, e := range r.Snapshot() {
		out[d] = e.PID
	}
	return out
}

// Shutdown clears every watch and stops the handlers. Launch fails with
// ErrClosed afterwards.
func (r *Registry) Shutdown() {
	r.ClearAll()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
}

func (r *Registry) emit(t history.EventType, rec store.Record, errText string) {
	if r.hist == nil {
		return
	}
	e := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec, Error: errText}
	if err := r.hist.Send(context.Background(), e); err != nil {
		r.log.Warn("history sink", "event", string(t), "dir", rec.Dir, "error", err)
	}
}

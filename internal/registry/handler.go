package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/history"
	"github.com/loykin/sasswatch/internal/metrics"
	"github.com/loykin/sasswatch/internal/process"
	"github.com/loykin/sasswatch/internal/store"
)

// ctrlType enumerates control message kinds handled by dirHandler.
type ctrlType int

const (
	ctrlLaunch ctrlType = iota
	ctrlClear
)

// ctrlMsg serializes lifecycle operations for one directory.
type ctrlMsg struct {
	typ         ctrlType
	ctx         context.Context
	projectRoot string
	cfg         config.Compiler
	reply       chan ctrlReply
}

type ctrlReply struct {
	msg string
	err error
}

// dirHandler owns the entry of a single canonical directory. Every launch
// and clear for that directory goes through its ctrl channel, so the
// duplicate check and the insert cannot interleave.
type dirHandler struct {
	dir  string
	r    *Registry
	ctrl chan ctrlMsg

	// refs counts callers between acquire and release; guarded by r.mu.
	refs int
	quit chan struct{}

	mu       sync.RWMutex
	entry    *Entry
	stopPipe context.CancelFunc
}

func newDirHandler(r *Registry, dir string) *dirHandler {
	return &dirHandler{dir: dir, r: r, ctrl: make(chan ctrlMsg, 16), quit: make(chan struct{})}
}

func (h *dirHandler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if h.current() != nil {
				h.clear()
			}
			return
		case <-h.quit:
			return
		case msg := <-h.ctrl:
			var rep ctrlReply
			switch msg.typ {
			case ctrlLaunch:
				rep.msg, rep.err = h.launch(msg.ctx, msg.projectRoot, msg.cfg)
			case ctrlClear:
				h.clear()
			}
			msg.reply <- rep
		}
	}
}

func (h *dirHandler) current() *Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entry
}

func (h *dirHandler) launch(ctx context.Context, projectRoot string, cfg config.Compiler) (string, error) {
	r := h.r
	if e := h.current(); e != nil {
		metrics.IncLaunch("duplicate")
		return "", fmt.Errorf("%s %w ( pid %d )", h.dir, ErrDuplicateWatch, e.PID)
	}

	req := process.WatchRequest{SourceDir: h.dir, ProjectRoot: projectRoot, Compressed: r.compressed, Config: cfg}
	res, err := r.launcher.StartWatch(ctx, req)
	if err != nil {
		return "", h.failed(fmt.Errorf("%w for %s: %w", ErrProcessLaunchFailed, h.dir, err))
	}
	if res.Killed {
		return "", h.failed(fmt.Errorf("%w for %s. process killed. Please check sassBinPath property", ErrProcessLaunchFailed, h.dir))
	}
	if res.PID <= 0 {
		h.drop()
		return "", h.failed(fmt.Errorf("unable to launch sass watcher for %s. %w. Please check sassBinPath property", h.dir, ErrInvalidProcessID))
	}

	targetDir := req.TargetDir()
	w, err := r.watchers.Watch(ctx, targetDir)
	if err != nil {
		if kerr := r.launcher.Kill(res.PID); kerr != nil {
			r.log.Warn("kill sass watcher after watch failure", "dir", h.dir, "pid", res.PID, "error", kerr)
		}
		return "", h.failed(fmt.Errorf("%w %s: %w", ErrWatcherFailed, targetDir, err))
	}

	pipeCtx, stop := context.WithCancel(r.ctx)
	go r.pipeline.Run(pipeCtx, cfg, w.Events())

	e := &Entry{PID: res.PID, Watcher: w, Source: h.dir, Target: targetDir, StartedAt: time.Now().UTC()}
	h.mu.Lock()
	h.entry = e
	h.stopPipe = stop
	h.mu.Unlock()

	metrics.IncLaunch("ok")
	metrics.SetActiveWatches(int(r.active.Add(1)))
	r.log.Debug("started css watcher", "dir", h.dir, "target", targetDir, "pid", res.PID)
	r.emit(history.EventLaunched, e.record(), "")
	return LaunchedMessage, nil
}

func (h *dirHandler) failed(err error) error {
	metrics.IncLaunch("failed")
	h.r.emit(history.EventLaunchFailed, store.Record{Dir: h.dir}, err.Error())
	return err
}

// drop removes any partially stored state.
func (h *dirHandler) drop() {
	h.mu.Lock()
	h.entry, h.stopPipe = nil, nil
	h.mu.Unlock()
}

func (h *dirHandler) clear() {
	r := h.r
	h.mu.Lock()
	e, stop := h.entry, h.stopPipe
	h.entry, h.stopPipe = nil, nil
	h.mu.Unlock()

	if e == nil {
		r.log.Info(fmt.Sprintf("Trying to unwatch %s. But no watcher launched earlier", h.dir))
		return
	}
	r.log.Info(fmt.Sprintf("About to unwatch %s with sass watcher pid %d", h.dir, e.PID))
	if err := r.launcher.Kill(e.PID); err != nil {
		r.log.Warn("kill sass watcher", "dir", h.dir, "pid", e.PID, "error", err)
	}
	if e.Watcher != nil {
		if err := e.Watcher.Close(); err != nil {
			r.log.Warn("close css watcher", "dir", h.dir, "pid", e.PID, "error", err)
		}
	}
	if stop != nil {
		stop()
	}
	metrics.IncClear()
	metrics.SetActiveWatches(int(r.active.Add(-1)))
	r.emit(history.EventCleared, e.record(), "")
}

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/sasswatch/internal/logger"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultKillGrace is how long a terminated compiler gets before SIGKILL.
const DefaultKillGrace = 3 * time.Second

var ErrInvalidPID = errors.New("invalid pid")

// Launcher starts and stops long-running compile watches.
type Launcher interface {
	StartWatch(ctx context.Context, req WatchRequest) (Result, error)
	Kill(pid int) error
}

// SassLauncher runs the sass binary in its own process group and keeps
// track of it until it exits.
type SassLauncher struct {
	logs      logger.Config
	log       *slog.Logger
	killGrace time.Duration

	mu    sync.Mutex
	procs map[int]*Process
}

type Option func(*SassLauncher)

// WithLogs sends compiler output to rotating files instead of slog.
func WithLogs(cfg logger.Config) Option {
	return func(l *SassLauncher) { l.logs = cfg }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *SassLauncher) {
		if log != nil {
			l.log = log
		}
	}
}

func WithKillGrace(d time.Duration) Option {
	return func(l *SassLauncher) { l.killGrace = d }
}

func NewSassLauncher(opts ...Option) *SassLauncher {
	l := &SassLauncher{
		log:       slog.Default(),
		killGrace: DefaultKillGrace,
		procs:     make(map[int]*Process),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// StartWatch spawns the compiler and waits out the start window
// (pause_interval). A process that dies inside the window is reported
// through Result instead of an error.
func (l *SassLauncher) StartWatch(ctx context.Context, req WatchRequest) (Result, error) {
	cmd := BuildCommand(req)
	outW, errW, err := l.writers(req.SourceDir)
	if err != nil {
		return Result{}, err
	}
	p := newProcess(cmd, req.SourceDir, outW, errW)
	if err := p.TryStart(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	pid := p.PID()
	l.track(p)
	go l.monitor(p)

	l.log.Debug("sass watcher started", "pid", pid, "dir", req.SourceDir, "args", cmd.Args)

	timer := time.NewTimer(req.Config.PauseDuration())
	defer timer.Stop()
	select {
	case <-p.Done():
		res := p.exitResult()
		l.log.Warn("sass watcher exited during start window",
			"pid", pid, "dir", req.SourceDir, "exit_code", res.ExitCode, "killed", res.Killed)
		return res, nil
	case <-ctx.Done():
		_ = l.Kill(pid)
		return Result{}, ctx.Err()
	case <-timer.C:
		return Result{PID: pid}, nil
	}
}

func (l *SassLauncher) writers(dir string) (io.WriteCloser, io.WriteCloser, error) {
	f := l.logs.File
	if f.Dir == "" && f.StdoutPath == "" && f.StderrPath == "" {
		log := l.log.With("dir", dir)
		return newLineWriter(log, slog.LevelInfo), newLineWriter(log, slog.LevelWarn), nil
	}
	return l.logs.ProcessWriters(logger.SafeName(dir))
}

func (l *SassLauncher) monitor(p *Process) {
	err := p.wait()
	l.untrack(p.PID())
	if err != nil {
		l.log.Info("sass watcher exited", "pid", p.PID(), "dir", p.sourceDir, "error", err)
		return
	}
	l.log.Info("sass watcher exited", "pid", p.PID(), "dir", p.sourceDir)
}

// Kill sends SIGTERM to the compiler's process group and returns without
// waiting. A tracked process still alive after the grace period is killed.
func (l *SassLauncher) Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	if p := l.lookup(pid); p != nil && l.killGrace > 0 {
		go l.escalate(p)
	}
	return nil
}

func (l *SassLauncher) escalate(p *Process) {
	t := time.NewTimer(l.killGrace)
	defer t.Stop()
	select {
	case <-p.Done():
	case <-t.C:
		l.log.Warn("sass watcher ignored SIGTERM, killing", "pid", p.PID(), "dir", p.sourceDir)
		_ = signalGroup(p.PID(), syscall.SIGKILL)
	}
}

// Alive reports whether pid still refers to a live process.
func (l *SassLauncher) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if p := l.lookup(pid); p != nil {
		select {
		case <-p.Done():
			return false
		default:
			return true
		}
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// IsWatchFor reports whether pid is a live process whose command line
// watches sourceDir. Used to recognise compilers left by an earlier daemon
// without trusting a possibly reused pid.
func IsWatchFor(pid int, sourceDir string) bool {
	if pid <= 0 {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	args, err := p.CmdlineSlice()
	if err != nil {
		return false
	}
	for _, a := range args {
		if strings.HasPrefix(a, sourceDir+":") {
			return true
		}
	}
	return false
}

// Running lists tracked compilers ordered by pid.
func (l *SassLauncher) Running() []Status {
	l.mu.Lock()
	out := make([]Status, 0, len(l.procs))
	for _, p := range l.procs {
		out = append(out, p.Snapshot())
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Shutdown terminates every tracked compiler and waits until they exit or
// ctx is done.
func (l *SassLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	procs := make([]*Process, 0, len(l.procs))
	for _, p := range l.procs {
		procs = append(procs, p)
	}
	l.mu.Unlock()
	for _, p := range procs {
		_ = l.Kill(p.PID())
	}
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *SassLauncher) track(p *Process) {
	l.mu.Lock()
	l.procs[p.PID()] = p
	l.mu.Unlock()
}

func (l *SassLauncher) untrack(pid int) {
	l.mu.Lock()
	delete(l.procs, pid)
	l.mu.Unlock()
}

func (l *SassLauncher) lookup(pid int) *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[pid]
}

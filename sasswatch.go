package sasswatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/fswatch"
	"github.com/loykin/sasswatch/internal/history"
	hfactory "github.com/loykin/sasswatch/internal/history/factory"
	"github.com/loykin/sasswatch/internal/logger"
	"github.com/loykin/sasswatch/internal/metrics"
	"github.com/loykin/sasswatch/internal/minify"
	"github.com/loykin/sasswatch/internal/pipeline"
	"github.com/loykin/sasswatch/internal/process"
	"github.com/loykin/sasswatch/internal/registry"
	iapi "github.com/loykin/sasswatch/internal/server"
	"github.com/loykin/sasswatch/internal/store"
	sfactory "github.com/loykin/sasswatch/internal/store/factory"
	"github.com/loykin/sasswatch/internal/target"
	"github.com/loykin/sasswatch/internal/watchlist"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.File

type Compiler = config.Compiler

type Entry = registry.Entry

type Outcome = registry.Outcome

type HistorySink = history.Sink

type HistoryEvent = history.Event

var (
	ErrDuplicateWatch      = registry.ErrDuplicateWatch
	ErrProcessLaunchFailed = registry.ErrProcessLaunchFailed
	ErrInvalidProcessID    = registry.ErrInvalidProcessID
	ErrNotWatched          = watchlist.ErrNotWatched
)

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func DefaultConfig() *Config { return config.Default() }

// LoadSettings reads compiler options from an editor settings file.
func LoadSettings(path string) (Compiler, error) { return config.LoadSettings(path) }

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLauncher replaces the sass process launcher.
func WithLauncher(l process.Launcher) Option {
	return func(s *Service) { s.launcher = l }
}

// WithWatchers replaces the filesystem watcher.
func WithWatchers(w fswatch.Starter) Option {
	return func(s *Service) { s.watchers = w }
}

// WithHistorySinks adds sinks next to the ones named by history_dsn.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// Service is the embeddable watch daemon.
type Service struct {
	cfg      Config
	root     string
	log      *slog.Logger
	launcher process.Launcher
	watchers fswatch.Starter
	pending  *watchlist.List
	reg      *registry.Registry
	st       store.Store
	sinks    history.Multi

	mu       sync.RWMutex
	compiler config.Compiler

	closeOnce sync.Once
}

// New builds a service from cfg. When store_dsn is set the pending list is
// restored from it and compilers left running by a previous daemon are
// stopped.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Compiler.Validate(); err != nil {
		return nil, err
	}
	lc := cfg.Log.Logger()
	if cfg.Compiler.Debug {
		lc.Slog.Level = logger.LevelDebug
	}
	s := &Service{
		cfg:      *cfg,
		root:     target.Resolve(".", cfg.ProjectRoot),
		log:      lc.NewSlogger(),
		compiler: cfg.Compiler,
	}
	for _, o := range opts {
		o(s)
	}
	if s.launcher == nil {
		s.launcher = process.NewSassLauncher(process.WithLogs(lc), process.WithLogger(s.log))
	}
	if s.watchers == nil {
		s.watchers = fswatch.Notify{Log: s.log}
	}

	s.pending = watchlist.New(cfg.Compiler.WatchDirectories...)
	s.pending.SetLogger(s.log)
	if cfg.StoreDSN != "" {
		st, err := sfactory.Open(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := s.pending.Attach(ctx, st); err != nil {
			_ = st.Close()
			return nil, err
		}
		s.st = st
		s.reapOrphans(ctx)
		s.sinks = append(s.sinks, stateRecorder{st: st})
	}
	if len(cfg.HistoryDSN) > 0 {
		sinks, err := hfactory.NewSinks(cfg.HistoryDSN)
		if err != nil {
			s.closeStore()
			return nil, fmt.Errorf("open history sinks: %w", err)
		}
		s.sinks = append(s.sinks, sinks...)
	}

	s.reg = registry.New(registry.Options{
		Launcher: s.launcher,
		Watchers: s.watchers,
		Pipeline: pipeline.New(minify.NewCSS(), s.root, pipeline.WithLogger(s.log)),
		Pending:  s.pending,
		History:  s.sinks,
		Logger:   s.log,
	})
	return s, nil
}

// reapOrphans stops compilers a crashed daemon left behind.
func (s *Service) reapOrphans(ctx context.Context) {
	recs, err := s.st.ListWatches(ctx)
	if err != nil {
		s.log.Warn("list recorded watches", "error", err)
		return
	}
	for _, rec := range recs {
		if process.IsWatchFor(rec.PID, rec.Dir) {
			s.log.Info("stopping compiler left by a previous run", "dir", rec.Dir, "pid", rec.PID)
			if err := s.launcher.Kill(rec.PID); err != nil {
				s.log.Warn("kill orphaned compiler", "dir", rec.Dir, "pid", rec.PID, "error", err)
			}
		}
		if err := s.st.DeleteWatch(ctx, rec.Dir); err != nil {
			s.log.Warn("drop recorded watch", "dir", rec.Dir, "error", err)
		}
	}
}

func (s *Service) Logger() *slog.Logger { return s.log }

func (s *Service) ProjectRoot() string { return s.root }

// Compiler returns the compiler settings used by new launches.
func (s *Service) Compiler() config.Compiler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiler
}

// SetCompiler replaces the settings used by subsequent launches.
func (s *Service) SetCompiler(c config.Compiler) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.compiler = c
	s.mu.Unlock()
	return nil
}

// ReloadSettings re-reads settings_file on top of the current settings.
func (s *Service) ReloadSettings() error {
	if s.cfg.SettingsFile == "" {
		return errors.New("no settings file configured")
	}
	c, err := config.LoadSettings(s.cfg.SettingsFile)
	if err != nil {
		return err
	}
	return s.SetCompiler(c)
}

func (s *Service) Launch(ctx context.Context, dir string) (string, error) {
	return s.reg.Launch(ctx, dir, s.root, s.Compiler())
}

func (s *Service) Clear(dir string) bool { return s.reg.Clear(dir, s.root) }

func (s *Service) ClearAll() { s.reg.ClearAll() }

func (s *Service) Relaunch(ctx context.Context) []Outcome {
	return s.reg.Relaunch(ctx, s.root, s.Compiler())
}

// RelaunchAsync starts the relaunch and returns one outcome channel per
// pending directory without waiting.
func (s *Service) RelaunchAsync(ctx context.Context) []<-chan Outcome {
	return s.reg.RelaunchAsync(ctx, s.root, s.Compiler())
}

func (s *Service) Snapshot() map[string]Entry { return s.reg.Snapshot() }

// AddDir adds dir to the pending list; false when it was already there.
func (s *Service) AddDir(dir string) bool { return s.pending.Add(dir) }

func (s *Service) RemoveDir(dir string) error { return s.pending.Remove(dir) }

func (s *Service) Dirs() []string { return s.pending.List() }

// Handler returns the HTTP API rooted at the configured base path.
func (s *Service) Handler() http.Handler {
	return iapi.NewRouter(s.reg, s.pending, s.root, s.Compiler, s.cfg.BasePath).Handler()
}

// Serve runs the API (and metrics when metrics_listen is set) until ctx is
// done, then closes the service.
func (s *Service) Serve(ctx context.Context) error {
	defer s.Close()
	var servers []*http.Server
	errCh := make(chan error, 2)
	start := func(srv *http.Server, name string) {
		servers = append(servers, srv)
		go func() {
			s.log.Info("listening", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	if s.cfg.MetricsListen != "" {
		if err := RegisterMetricsDefault(); err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		start(iapi.NewServer(s.cfg.MetricsListen, mux), "metrics")
		usage := &metrics.UsageCollector{PIDs: s.reg.PIDs, Log: s.log}
		go usage.Run(ctx)
	}
	start(iapi.NewServer(s.cfg.Listen, s.Handler()), "api")

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}

// Close stops every watch and releases the store and history sinks.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.reg.Shutdown()
		if sl, ok := s.launcher.(*process.SassLauncher); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sl.Shutdown(ctx); err != nil {
				s.log.Warn("compilers still running at shutdown", "error", err)
			}
			cancel()
		}
		if err := s.sinks.Close(); err != nil {
			s.log.Warn("close history sinks", "error", err)
		}
		s.closeStore()
	})
}

func (s *Service) closeStore() {
	if s.st != nil {
		_ = s.st.Close()
		s.st = nil
	}
}

// stateRecorder keeps watch_state in the store in step with the registry.
type stateRecorder struct {
	st store.Store
}

func (r stateRecorder) Send(ctx context.Context, e history.Event) error {
	switch e.Type {
	case history.EventLaunched:
		return r.st.RecordWatch(ctx, e.Record)
	case history.EventCleared:
		return r.st.DeleteWatch(ctx, e.Record.Dir)
	}
	return nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

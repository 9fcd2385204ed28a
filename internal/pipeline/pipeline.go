// Package pipeline turns compiled-CSS file events into minified siblings.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/fswatch"
	"github.com/loykin/sasswatch/internal/metrics"
	"github.com/loykin/sasswatch/internal/minify"
	"github.com/loykin/sasswatch/internal/prefix"
	"github.com/loykin/sasswatch/internal/target"
)

// PrefixerFactory builds the prefix step for a compiler config.
type PrefixerFactory func(cfg config.Compiler) prefix.Transformer

// Pipeline never returns errors to its caller; failures are logged and
// counted so one bad file cannot stop the watch.
type Pipeline struct {
	minifier  minify.Minifier
	prefixers PrefixerFactory
	log       *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithPrefixers(f PrefixerFactory) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.prefixers = f
		}
	}
}

// New builds a pipeline. Without WithPrefixers the prefix step follows the
// compiler config and runs in projectRoot.
func New(m minify.Minifier, projectRoot string, opts ...Option) *Pipeline {
	p := &Pipeline{minifier: m, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if p.prefixers == nil {
		log := p.log
		p.prefixers = func(cfg config.Compiler) prefix.Transformer {
			return prefix.New(cfg, projectRoot, log)
		}
	}
	return p
}

// Run consumes events until the channel closes or ctx is done. Events of one
// stream are handled in order.
func (p *Pipeline) Run(ctx context.Context, cfg config.Compiler, events <-chan fswatch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Handle(ctx, cfg, ev)
		}
	}
}

func (p *Pipeline) Handle(ctx context.Context, cfg config.Compiler, ev fswatch.Event) {
	switch ev.Kind {
	case fswatch.Added, fswatch.Changed:
		p.Minify(ctx, cfg, ev.Path)
	case fswatch.Removed:
		p.Remove(cfg, ev.Path)
	}
}

// compiledCSS holds for compiled stylesheets that are not themselves
// minified output; it is what keeps the pipeline from feeding on its own writes.
func compiledCSS(cfg config.Compiler, path string) bool {
	return target.IsCSSFile(path) && !target.IsMinCSS(path, cfg.MinCSSExtension)
}

// Minify writes the minified sibling of path.
func (p *Pipeline) Minify(ctx context.Context, cfg config.Compiler, path string) {
	if cfg.DisableMinifiedFileGeneration || !compiledCSS(cfg, path) {
		return
	}
	dst := target.MinCSSPath(path, cfg.MinCSSExtension)
	prefixer := p.prefixers(cfg)
	start := time.Now()
	msg, err := p.minifier.Minify(ctx, minify.Request{
		Source:      path,
		Destination: dst,
		Encoding:    cfg.Encoding,
		Transform:   prefixer.Transform,
	})
	metrics.ObserveMinifyDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.IncMinify("error")
		p.log.Error("minify failed", "path", path, "error", err)
		return
	}
	metrics.IncMinify("ok")
	p.log.Info("minified", "path", path, "detail", msg)
}

// Remove deletes the minified sibling of a removed stylesheet, also when
// generation is disabled. Failures, including a sibling that was never
// written, are warnings only.
func (p *Pipeline) Remove(cfg config.Compiler, path string) {
	if !compiledCSS(cfg, path) {
		return
	}
	dst := target.MinCSSPath(path, cfg.MinCSSExtension)
	if err := os.Remove(dst); err != nil {
		result := "error"
		if errors.Is(err, fs.ErrNotExist) {
			result = "missing"
		}
		metrics.IncMinifiedDelete(result)
		p.log.Warn("error deleting minified css", "path", dst, "error", err)
		return
	}
	metrics.IncMinifiedDelete("ok")
	p.log.Info("deleted minified css", "path", dst)
}

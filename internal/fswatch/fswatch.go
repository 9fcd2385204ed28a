// Package fswatch reports file additions, changes and removals below a
// directory tree as a single ordered event stream.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Kind int

const (
	Added Kind = iota
	Changed
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	Path string
}

// Handle is a live watch. Events is closed after Close.
type Handle interface {
	Events() <-chan Event
	Close() error
}

// Starter attaches a watch to a directory tree.
type Starter interface {
	Watch(ctx context.Context, dir string) (Handle, error)
}

// DefaultBuffer is the event channel capacity.
const DefaultBuffer = 256

// Notify is the fsnotify-backed Starter.
type Notify struct {
	Log    *slog.Logger
	Buffer int
}

// Watch creates dir if needed and watches it recursively. ctx bounds only
// the initial attach; the watch lives until Close.
func (n Notify) Watch(ctx context.Context, dir string) (Handle, error) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	buf := n.Buffer
	if buf <= 0 {
		buf = DefaultBuffer
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create watch dir %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}
	w := &Watcher{
		fw:     fw,
		root:   dir,
		events: make(chan Event, buf),
		done:   make(chan struct{}),
		log:    log.With("watch", dir),
	}
	if err := w.addTree(ctx, dir, nil); err != nil {
		_ = fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

type Watcher struct {
	fw     *fsnotify.Watcher
	root   string
	events chan Event
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func (w *Watcher) Events() <-chan Event { return w.events }

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

// addTree watches every directory below root. When found is non-nil it is
// called for files already present, so files created together with a new
// directory are not missed.
func (w *Watcher) addTree(ctx context.Context, root string, found func(string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != root {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if err := w.fw.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			return nil
		}
		if found != nil {
			found(p)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.handle(ev) {
				return
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

// handle translates one fsnotify event; false means the watch was closed.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	switch {
	case ev.Has(fsnotify.Create):
		fi, err := os.Stat(ev.Name)
		if err != nil {
			return true
		}
		if fi.IsDir() {
			var files []string
			if err := w.addTree(context.Background(), ev.Name, func(p string) { files = append(files, p) }); err != nil {
				w.log.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
			}
			for _, f := range files {
				if !w.emit(Event{Kind: Added, Path: f}) {
					return false
				}
			}
			return true
		}
		return w.emit(Event{Kind: Added, Path: ev.Name})
	case ev.Has(fsnotify.Write):
		return w.emit(Event{Kind: Changed, Path: ev.Name})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return w.emit(Event{Kind: Removed, Path: ev.Name})
	}
	return true
}

func (w *Watcher) emit(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

// Package watchlist keeps the directories configured to be watched,
// independent of which of them currently have a live compiler.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/loykin/sasswatch/internal/store"
)

var ErrNotWatched = errors.New("not being watched before")

// List is ordered and free of duplicates (by value). When a store is
// attached every change is mirrored to it.
type List struct {
	mu   sync.RWMutex
	dirs []string
	st   store.Store
	log  *slog.Logger
}

func New(dirs ...string) *List {
	l := &List{log: slog.Default()}
	for _, d := range dirs {
		l.add(d)
	}
	return l
}

func (l *List) SetLogger(log *slog.Logger) {
	if log == nil {
		return
	}
	l.mu.Lock()
	l.log = log
	l.mu.Unlock()
}

// Attach restores the persisted list, merges it after the directories
// already present and persists the merged result.
func (l *List) Attach(ctx context.Context, st store.Store) error {
	saved, err := st.ListDirs(ctx)
	if err != nil {
		return fmt.Errorf("load pending dirs: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range saved {
		l.add(d)
	}
	for _, d := range l.dirs {
		if err := st.AddDir(ctx, d); err != nil {
			return fmt.Errorf("persist %s: %w", d, err)
		}
	}
	l.st = st
	return nil
}

// Add appends dir and reports whether it was newly added.
func (l *List) Add(dir string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.add(dir) {
		return false
	}
	if l.st != nil {
		if err := l.st.AddDir(context.Background(), dir); err != nil {
			l.log.Error("persist pending dir", "dir", dir, "error", err)
		}
	}
	return true
}

func (l *List) add(dir string) bool {
	if slices.Contains(l.dirs, dir) {
		return false
	}
	l.dirs = append(l.dirs, dir)
	return true
}

// Remove drops dir, or fails with ErrNotWatched when it is not listed.
func (l *List) Remove(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.Index(l.dirs, dir)
	if i < 0 {
		return fmt.Errorf("%s %w", dir, ErrNotWatched)
	}
	l.dirs = slices.Delete(l.dirs, i, i+1)
	if l.st != nil {
		if err := l.st.RemoveDir(context.Background(), dir); err != nil && !errors.Is(err, store.ErrNotFound) {
			l.log.Error("unpersist pending dir", "dir", dir, "error", err)
		}
	}
	return nil
}

// List returns a copy in insertion order.
func (l *List) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.dirs)
}

func (l *List) Contains(dir string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.dirs, dir)
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.dirs)
}

package prompt

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"trendseer/internal/observability"
)

// Source yields the templates to use for the next prompt.
type Source interface {
	Current() *Templates
}

// Current makes a fixed *Templates usable as a Source.
func (t *Templates) Current() *Templates { return t }

// Reloader re-reads the prompts file whenever it changes on disk. A file
// that fails to parse is logged and the previous templates stay active.
type Reloader struct {
	path     string
	current  atomic.Pointer[Templates]
	debounce time.Duration
	log      *observability.Logger
}

func NewReloader(path string) (*Reloader, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	r := &Reloader{path: path, debounce: 250 * time.Millisecond, log: observability.Component("prompt.reload")}
	r.current.Store(t)
	return r, nil
}

func (r *Reloader) Current() *Templates { return r.current.Load() }

// Watch blocks until ctx is done. The parent directory is watched so editors
// that replace the file on save are handled.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompt: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("prompt: watch %s: %w", r.path, err)
	}
	target := filepath.Clean(r.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(r.debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			r.reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn(ctx, "prompt watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload(ctx context.Context) {
	t, err := Load(r.path)
	if err != nil {
		r.log.Error(ctx, "prompt reload failed, keeping previous templates", "path", r.path, "error", err)
		return
	}
	r.current.Store(t)
	r.log.Info(ctx, "prompt templates reloaded", "path", r.path)
}

package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/modgraph/pkg/observability"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives a freshly loaded, valid manifest
type ChangeFunc func(ctx context.Context, m *Manifest) error

// Watcher reloads a manifest file whenever it changes on disk. Invalid
// manifests are logged and skipped; the last good state stays in effect.
type Watcher struct {
	path     string
	onChange ChangeFunc
	debounce time.Duration
	logger   *observability.Logger
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, onChange ChangeFunc, logger *observability.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Watcher{
		path:     abs,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   logger.WithField("manifest", abs),
	}, nil
}

// SetDebounce changes the quiet period before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until ctx is done. The parent directory is watched rather than
// the file so that atomic replaces (write to temp, rename) are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching manifest for changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("manifest watcher error")
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	m, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("manifest reload skipped")
		return
	}
	if err := w.onChange(ctx, m); err != nil {
		w.logger.WithError(err).Error("failed to apply reloaded manifest")
		return
	}
	w.logger.WithField("modules", len(m.Modules)).Info("manifest reloaded")
}

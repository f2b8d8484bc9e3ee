package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// StateWatcher keeps an in-memory snapshot of the local state file. The file
// is rewritten by `linkup local|remote` in another process; the watcher picks
// the change up through fsnotify and, as a fallback, a periodic reload.
type StateWatcher struct {
	path     string
	logger   logger.Logger
	interval time.Duration

	state   atomic.Pointer[localstate.State]
	targets atomic.Value // domain.Targets

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStateWatcher creates a watcher for the state file at path
func NewStateWatcher(path string, log logger.Logger, interval time.Duration) *StateWatcher {
	w := &StateWatcher{
		path:     path,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.targets.Store(domain.Targets(domain.RemoteOnly{}))
	return w
}

// State returns the last loaded state, nil before the first successful load
func (w *StateWatcher) State() *localstate.State {
	return w.state.Load()
}

// Targets returns the local/remote switch of the last loaded state. Before any
// state is loaded everything is remote.
func (w *StateWatcher) Targets() domain.Targets {
	return w.targets.Load().(domain.Targets)
}

// Reload reads the state file now
func (w *StateWatcher) Reload() error {
	s, err := localstate.Load(w.path)
	if err != nil {
		return err
	}
	w.state.Store(s)
	w.targets.Store(s.Targets())
	return nil
}

// Start loads the state once and keeps it fresh until ctx ends or Stop is called.
// A missing state file is not an error: the server may start before the CLI
// writes one.
func (w *StateWatcher) Start(ctx context.Context) error {
	if err := w.Reload(); err != nil {
		w.logger.Warn("local state not loaded yet",
			logger.String("path", w.path),
			logger.Error(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("file watching unavailable, polling only", logger.Error(err))
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("cannot watch state directory, polling only",
			logger.String("dir", filepath.Dir(w.path)),
			logger.Error(err))
		_ = watcher.Close()
		watcher = nil
	}

	go w.loop(ctx, watcher)
	return nil
}

// Stop ends the watch loop and waits for it
func (w *StateWatcher) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
}

func (w *StateWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.doneCh)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
		events = watcher.Events
		errs = watcher.Errors
	}

	interval := w.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	name := filepath.Base(w.path)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// the state file is replaced by rename, so watch the directory
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			w.reload("state file changed")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("state watcher error", logger.Error(err))
		case <-ticker.C:
			w.reload("")
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *StateWatcher) reload(reason string) {
	if err := w.Reload(); err != nil {
		w.logger.Debug("state reload failed", logger.Error(err))
		return
	}
	if reason != "" {
		w.logger.Debug(reason, logger.String("path", w.path))
	}
}

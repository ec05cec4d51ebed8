package prompts

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounce = 100 * time.Millisecond

// Watcher reloads a Manager when JSON files in its override directory change.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher starts watching m's override directory.
func NewWatcher(m *Manager, logger *zap.Logger) (*Watcher, error) {
	if m.Dir() == "" {
		return nil, fmt.Errorf("prompt manager has no override directory")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(m.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", m.Dir(), err)
	}

	w := &Watcher{
		manager: m,
		watcher: fw,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	logger.Info("prompt watcher started", zap.String("dir", m.Dir()))
	return w, nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	var timer *time.Timer
	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prompt watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	if err := w.manager.Reload(); err != nil {
		w.logger.Error("reloading prompts, keeping previous set", zap.Error(err))
		return
	}
	w.logger.Info("prompts reloaded", zap.Strings("types", w.manager.Types()))
}

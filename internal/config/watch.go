package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches the provisioning file for changes and invokes onChange
// with the freshly loaded and validated Config whenever it is rewritten.
// It never rotates keys in place: a change always produces a brand new
// Config, and it is the caller's responsibility to discard and rebuild
// security contexts from it (§3's immutability invariant).
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	logger   *logrus.Logger
	onChange func(*Config)
	done     chan struct{}
}

// NewWatcher creates a Watcher for the configuration file at path. Call
// Start to begin watching; call Close to stop.
func NewWatcher(path string, logger *logrus.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		path:     path,
		fsw:      fsw,
		logger:   logger,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the configuration file in a background goroutine.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.path); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.WithField("path", w.path).Info("provisioning file changed, reloading")
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WithError(err).Error("reload of provisioning file failed, keeping prior config")
				continue
			}
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("fsnotify watch error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

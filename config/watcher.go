package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/utils"
)

// reloadDelay is how long the file must be quiet before it is re-read. A single save usually
// shows up as a truncate followed by one or more writes.
const reloadDelay = 100 * time.Millisecond

// A Watcher re-reads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	configs  chan *Config
	fs       *fsnotify.Watcher
	debounce func(f func())
	workers  utils.StoppableWorkers
	logger   logging.Logger
}

// NewWatcher watches the config file at path. The directory is watched rather than the file so
// that editors which replace the file on save are still seen.
func NewWatcher(path string, logger logging.Logger) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "error creating config watcher")
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "error watching %q", path), fs.Close())
	}
	w := &Watcher{
		path:     path,
		configs:  make(chan *Config, 1),
		fs:       fs,
		debounce: debounce.New(reloadDelay),
		logger:   logger,
	}
	w.workers = utils.NewStoppableWorkers(w.watch)
	return w, nil
}

// Configs receives every successfully read revision of the file. Only the newest unread revision
// is kept.
func (w *Watcher) Configs() <-chan *Config {
	return w.configs
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("error watching config", "path", w.path, "error", err)
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			w.debounce(w.reload)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Warnw("ignoring unreadable config change", "path", w.path, "error", err)
		return
	}
	w.publish(cfg)
}

func (w *Watcher) publish(cfg *Config) {
	for {
		select {
		case w.configs <- cfg:
			return
		default:
		}
		select {
		case <-w.configs:
		default:
		}
	}
}

// Close stops watching and drops any reload still waiting for the file to go quiet.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	w.workers.Stop()
	w.debounce(func() {})
	return err
}

package config

import (
	"sync"

	"github.com/knadh/koanf/providers/file"

	"github.com/kilianp07/routeloop/infra/logger"
)

// Watcher reloads the configuration file on change. Consumers pull Latest()
// at cycle boundaries, so a running cycle is never reconfigured midway.
// Invalid edits are rejected and the previous configuration stays active.
type Watcher struct {
	path string
	fp   *file.File
	log  logger.Logger

	mu     sync.RWMutex
	latest *Config
}

// NewWatcher loads the configuration and starts watching the file.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:   path,
		fp:     file.Provider(path),
		log:    logger.New("config-watcher"),
		latest: cfg,
	}
	if err := w.fp.Watch(func(_ interface{}, werr error) {
		if werr != nil {
			w.log.Errorf("config watch: %v", werr)
			return
		}
		next, lerr := Load(w.path)
		if lerr != nil {
			w.log.Errorf("config reload rejected: %v", lerr)
			return
		}
		w.mu.Lock()
		w.latest = next
		w.mu.Unlock()
		w.log.Infof("configuration reloaded")
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// Latest returns the most recent valid configuration.
func (w *Watcher) Latest() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.fp.Unwatch()
}

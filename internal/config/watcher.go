package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the hot-reloadable subset of Config (feedback window,
// runbook graduation count, recurrence lookback, thresholds) whenever the
// .env file changes on disk or a SIGHUP arrives, without restarting the
// process — mirroring cmd/pulse/main.go's configWatcher + SIGHUP pattern.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu  sync.RWMutex
	cur *Config

	done chan struct{}
}

// NewWatcher builds a Watcher over envPath (typically ".env" in the working
// directory), seeded with the already-loaded cfg.
func NewWatcher(envPath string, cfg *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(envPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: envPath, fsw: fsw, cur: cfg, done: make(chan struct{})}, nil
}

// Current returns the most recently reloaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Start begins watching for .env writes in the background.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case <-w.done:
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(w.path) && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					w.Reload()
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config: watcher error")
			}
		}
	}()
}

// Reload re-reads configuration and swaps in the new value. Only the
// hot-reloadable fields are applied; fields requiring a restart (DataDir,
// DBPath) keep their original value.
func (w *Watcher) Reload() {
	next, err := Load()
	if err != nil {
		log.Error().Err(err).Msg("config: reload failed, keeping previous configuration")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next.DataDir = w.cur.DataDir
	next.DBPath = w.cur.DBPath
	w.cur = next
	log.Info().Msg("config: reloaded hot-reloadable settings")
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}

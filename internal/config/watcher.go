package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// Watcher monitors a config file, and the intent files it references, for
// changes and calls a callback when any of them is modified. It polls
// instead of relying on filesystem notifications.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastFiles []string
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, files, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastFiles = files
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the config if any watched file changed, appeared or
// disappeared and the result is valid, then calls onChange.
func (w *Watcher) check() {
	w.mu.Lock()
	cur, lastFiles, lastMtime := w.current, w.lastFiles, w.lastMtime
	w.mu.Unlock()

	files := watchedFiles(w.path, cur)
	mtime, err := latestMtime(files)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	// A copied file can keep an older mtime, so the file set is compared too.
	if mtime.Equal(lastMtime) && slices.Equal(files, lastFiles) {
		return
	}

	cfg, newFiles, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.lastFiles = newFiles
	w.lastMtime = newMtime
	if hash == w.lastHash {
		// Touched but identical.
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadAndHash loads and validates the config, then hashes it together with
// every intent file it references. An invalid config yields an error and
// the caller keeps the previous one.
func (w *Watcher) loadAndHash() (*Config, []string, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	cfg, err := Load(w.path)
	if err != nil {
		return nil, nil, zeroHash, time.Time{}, err
	}

	files := watchedFiles(w.path, cfg)
	mtime, err := latestMtime(files)
	if err != nil {
		return nil, nil, zeroHash, time.Time{}, err
	}

	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, zeroHash, time.Time{}, err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", f, len(data))
		h.Write(data)
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return cfg, files, sum, mtime, nil
}

// watchedFiles returns the config file followed by the intent files of cfg.
// Intent patterns that fail to expand are left to the next full load to
// report.
func watchedFiles(path string, cfg *Config) []string {
	files := []string{path}
	if cfg == nil {
		return files
	}
	intents, err := cfg.IntentFiles()
	if err != nil {
		return files
	}
	return append(files, intents...)
}

func latestMtime(files []string) (time.Time, error) {
	var latest time.Time
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

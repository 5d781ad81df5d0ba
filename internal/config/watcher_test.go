package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/phonomatch/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
g2p:
  provider:
    name: identity
intents:
  - intents/*.yaml
`

const watcherUpdatedYAML = `
server:
  log_level: debug
g2p:
  provider:
    name: identity
intents:
  - intents/*.yaml
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// rewrite writes content and moves the mtime forward so that the change is
// visible even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	writeFile(t, path, content)
	ts := time.Now().Add(offset)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("failed to touch file %q: %v", path, err)
	}
}

// setupWatched creates a config file and one intent file in a fresh
// directory and returns their paths.
func setupWatched(t *testing.T) (cfgPath, intentPath string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "intents"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	cfgPath = filepath.Join(dir, "config.yaml")
	intentPath = filepath.Join(dir, "intents", "curtains.yaml")
	writeFile(t, cfgPath, watcherValidYAML)
	writeFile(t, intentPath, "name: curtains\n")
	return cfgPath, intentPath
}

// recorder collects watcher callbacks.
type recorder struct {
	mu     sync.Mutex
	calls  int
	old    *config.Config
	new    *config.Config
	called chan struct{}
}

func newRecorder() *recorder {
	return &recorder{called: make(chan struct{}, 8)}
}

func (r *recorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.calls++
	r.old, r.new = old, new
	r.mu.Unlock()
	select {
	case r.called <- struct{}{}:
	default:
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath, _ := setupWatched(t)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath, _ := setupWatched(t)

	rec := newRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	rewrite(t, cfgPath, watcherUpdatedYAML, time.Second)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.old == nil || rec.new == nil {
		t.Fatal("callback received nil configs")
	}
	if rec.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level: got %q, want %q", rec.old.Server.LogLevel, config.LogInfo)
	}
	if rec.new.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level: got %q, want %q", rec.new.Server.LogLevel, config.LogDebug)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level: got %q, want %q", cur.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_DetectsIntentFileChange(t *testing.T) {
	t.Parallel()
	cfgPath, intentPath := setupWatched(t)

	rec := newRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	rewrite(t, intentPath, "name: curtains\nbudget: 3\n", time.Second)
	rec.wait(t)

	if d := config.Diff(rec.old, rec.new); d.LogLevelChanged || d.IntentsChanged {
		t.Errorf("config itself did not change, got diff %+v", d)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath, _ := setupWatched(t)

	rec := newRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	rewrite(t, cfgPath, watcherInvalidYAML, time.Second)
	time.Sleep(300 * time.Millisecond)

	if calls := rec.count(); calls != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", calls)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher("/nonexistent/path.yaml", nil)
	if err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	cfgPath, _ := setupWatched(t)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Stop()
	w.Stop()
	w.Stop()
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	cfgPath, intentPath := setupWatched(t)

	rec := newRecorder()
	w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	now := time.Now().Add(time.Second)
	for _, p := range []string{cfgPath, intentPath} {
		if err := os.Chtimes(p, now, now); err != nil {
			t.Fatalf("failed to touch file: %v", err)
		}
	}
	time.Sleep(300 * time.Millisecond)

	if calls := rec.count(); calls != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", calls)
	}
}

func TestWatcher_DetectsIntentFileSetChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change func(t *testing.T, dir string)
	}{
		{
			name: "file added with an older mtime",
			change: func(t *testing.T, dir string) {
				rewrite(t, filepath.Join(dir, "lights.yaml"), "name: lights\n", -time.Hour)
			},
		},
		{
			name: "older file removed",
			change: func(t *testing.T, dir string) {
				if err := os.Remove(filepath.Join(dir, "music.yaml")); err != nil {
					t.Fatalf("Remove: %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfgPath, intentPath := setupWatched(t)
			dir := filepath.Dir(intentPath)
			rewrite(t, filepath.Join(dir, "music.yaml"), "name: music\n", -2*time.Hour)

			rec := newRecorder()
			w, err := config.NewWatcher(cfgPath, rec.onChange, config.WithInterval(50*time.Millisecond))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer w.Stop()

			tt.change(t, dir)
			rec.wait(t)

			if calls := rec.count(); calls != 1 {
				t.Errorf("callback calls = %d, want 1", calls)
			}
		})
	}
}

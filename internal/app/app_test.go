package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/phonomatch/internal/app"
	"github.com/MrWong99/phonomatch/internal/config"
	"github.com/MrWong99/phonomatch/internal/observe"
	"github.com/MrWong99/phonomatch/internal/server"
	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/g2p/mock"
)

// testConfig returns a config that recognises the lights intent with the
// identity transliterator.
func testConfig(intents ...string) *config.Config {
	if len(intents) == 0 {
		intents = []string{"lights.yaml"}
	}
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		G2P:     config.G2PConfig{Provider: config.ProviderEntry{Name: "identity"}},
		Intents: intents,
		BaseDir: "testdata",
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testRegistry(extra map[string]g2p.Transliterator) *config.Registry {
	reg := config.NewRegistry()
	reg.Register("identity", func(config.ProviderEntry) (g2p.Transliterator, error) {
		return g2p.Identity{}, nil
	})
	for name, t := range extra {
		reg.Register(name, func(config.ProviderEntry) (g2p.Transliterator, error) { return t, nil })
	}
	return reg
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func newApp(t *testing.T, cfg *config.Config, reg *config.Registry, opts ...app.Option) *app.App {
	t.Helper()
	m, _ := testMetrics(t)
	a, err := app.New(context.Background(), cfg, reg, append([]app.Option{app.WithMetrics(m)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func recognize(t *testing.T, h http.Handler, text string) server.RecognizeResponse {
	t.Helper()
	body, _ := json.Marshal(server.RecognizeRequest{Text: text})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/recognize", strings.NewReader(string(body))))
	var resp server.RecognizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestNew_RecognizesAndRunsWebhook(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var rec struct {
			Intent string `json:"intent"`
		}
		_ = json.Unmarshal(data, &rec)
		mu.Lock()
		received = append(received, rec.Intent)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)

	cfg := testConfig()
	cfg.Actions = []config.ActionConfig{{Intent: "lights", Webhook: hook.URL, Timeout: time.Second}}
	a := newApp(t, cfg, testRegistry(nil), app.WithHTTPClient(hook.Client()))

	resp := recognize(t, a.Handler(), "Allume la lumière")
	if !resp.Matched || resp.Recognition == nil {
		t.Fatalf("response = %+v, want a match", resp)
	}
	if diff := cmp.Diff([]string{"on", "light"}, resp.Recognition.Strings); diff != "" {
		t.Errorf("Strings mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Error != "" {
		t.Errorf("actions = %+v, want one successful action", resp.Actions)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"lights"}, received); diff != "" {
		t.Errorf("webhook calls mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *config.Config) { c.G2P.Provider.Name = "nope" },
			wantErr: config.ErrProviderNotRegistered,
		},
		{
			name:    "unknown fallback",
			mutate:  func(c *config.Config) { c.G2P.Fallbacks = []config.ProviderEntry{{Name: "nope"}} },
			wantErr: config.ErrProviderNotRegistered,
		},
		{
			name:    "missing intent file",
			mutate:  func(c *config.Config) { c.Intents = []string{"missing.yaml"} },
			wantMsg: "missing.yaml",
		},
		{
			name:    "invalid intent file",
			mutate:  func(c *config.Config) { c.Intents = []string{"broken.yaml"} },
			wantMsg: "basic node needs an id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.mutate(cfg)
			m, _ := testMetrics(t)
			_, err := app.New(context.Background(), cfg, testRegistry(nil), app.WithMetrics(m))
			if err == nil {
				t.Fatal("New succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNew_FallbackTransliterator(t *testing.T) {
	t.Parallel()

	broken := &mock.Transliterator{Err: errors.New("espeak not installed")}
	cfg := testConfig()
	cfg.G2P.Provider = config.ProviderEntry{Name: "broken"}
	cfg.G2P.Fallbacks = []config.ProviderEntry{{Name: "identity"}}

	m, reader := testMetrics(t)
	a, err := app.New(context.Background(), cfg, testRegistry(map[string]g2p.Transliterator{"broken": broken}), app.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if resp := recognize(t, a.Handler(), "éteins la lumière"); !resp.Matched {
		t.Fatalf("response = %+v, want a match through the fallback", resp)
	}
	if broken.CallCount() == 0 {
		t.Error("primary transliterator was never tried")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var errs int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "phonomatch.g2p.errors" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("provider")); ok && v.AsString() == "broken" {
					errs += dp.Value
				}
			}
		}
	}
	if errs == 0 {
		t.Error("no g2p error recorded for the broken provider")
	}
}

func TestNew_Cache(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.G2P.CachePath = filepath.Join(t.TempDir(), "cache", "g2p.db")
	a := newApp(t, cfg, testRegistry(nil))

	if resp := recognize(t, a.Handler(), "allume la lumière"); !resp.Matched {
		t.Fatalf("response = %+v, want a match", resp)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/readyz status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{"intents": "ok", "g2p": "ok", "g2p_cache": "ok"}
	if diff := cmp.Diff(want, body.Checks); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}
}

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	old := testConfig()
	a := newApp(t, old, testRegistry(nil), app.WithLevelVar(&level))
	ctx := context.Background()

	if resp := recognize(t, a.Handler(), "joue la marseillaise"); resp.Matched {
		t.Fatalf("music matched before reload: %+v", resp)
	}

	next := testConfig("lights.yaml", "music.yaml")
	next.Server.LogLevel = config.LogDebug
	a.Reload(ctx, old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	resp := recognize(t, a.Handler(), "joue la marseillaise")
	if !resp.Matched || resp.Recognition.Intent != "music" {
		t.Fatalf("response = %+v, want music", resp)
	}
	if diff := cmp.Diff(map[string]string{"song": "la marseillaise"}, resp.Recognition.Params); diff != "" {
		t.Errorf("Params mismatch (-want +got):\n%s", diff)
	}

	// A broken reload keeps the previous intents.
	bad := testConfig("broken.yaml")
	bad.Server.LogLevel = config.LogDebug
	a.Reload(ctx, next, bad)
	if resp := recognize(t, a.Handler(), "joue la marseillaise"); !resp.Matched {
		t.Errorf("music lost after a failed reload: %+v", resp)
	}
}

func TestApp_ReloadActions(t *testing.T) {
	t.Parallel()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	old := testConfig()
	a := newApp(t, old, testRegistry(nil), app.WithHTTPClient(hook.Client()))
	if a.Filter().HasActions("lights") {
		t.Fatal("lights has actions before reload")
	}

	next := testConfig()
	next.Actions = []config.ActionConfig{{Intent: "lights", Webhook: hook.URL, Timeout: time.Second}}
	a.Reload(context.Background(), old, next)
	if !a.Filter().HasActions("lights") {
		t.Error("lights has no actions after reload")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testRegistry(nil))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.G2P.CachePath = filepath.Join(t.TempDir(), "g2p.db")
	m, _ := testMetrics(t)
	a, err := app.New(context.Background(), cfg, testRegistry(nil), app.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
	// Later calls are no-ops.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v, want nil", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Package voicecmd turns recognised utterances into side effects. A [Filter]
// runs each utterance through the current intent recognizer and executes the
// actions registered for the recognised intent, such as posting the
// recognition to a webhook.
package voicecmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/observe"
)

// AnyIntent registers an action for every recognised intent.
const AnyIntent = "*"

// ErrNoRecognizer is returned by [Filter.Check] before a recognizer is
// loaded.
var ErrNoRecognizer = errors.New("voicecmd: no recognizer loaded")

// Action is a side effect executed for a recognition.
type Action struct {
	// Name is a label for logs and metrics.
	Name string

	// Run executes the action. The returned string is a short summary for
	// logging.
	Run func(ctx context.Context, rec *intent.Recognition) (string, error)
}

// Result reports the outcome of one action.
type Result struct {
	Action  string `json:"action"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Option configures a [Filter].
type Option func(*Filter)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Filter) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithActions sets the initial action table, keyed by intent name or
// [AnyIntent].
func WithActions(actions map[string][]Action) Option {
	return func(f *Filter) { f.actions = actions }
}

// Filter recognises utterances and executes the matching actions.
//
// All methods are safe for concurrent use. The action table can be replaced
// at runtime with [Filter.SetActions].
type Filter struct {
	live    *intent.Live
	metrics *observe.Metrics

	mu      sync.RWMutex
	actions map[string][]Action
}

// New creates a Filter that recognises against the recognizer currently
// held by live.
func New(live *intent.Live, opts ...Option) *Filter {
	f := &Filter{live: live}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// SetActions replaces the action table.
func (f *Filter) SetActions(actions map[string][]Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = actions
}

// HasActions reports whether any action would run for intentName.
func (f *Filter) HasActions(intentName string) bool {
	return len(f.actionsFor(intentName)) > 0
}

func (f *Filter) actionsFor(intentName string) []Action {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := append([]Action(nil), f.actions[intentName]...)
	return append(out, f.actions[AnyIntent]...)
}

// Check recognises text and runs the actions of the recognised intent. It
// returns a nil recognition when nothing matched. Actions run in
// registration order; a failing action does not stop the others, and all
// failures are returned joined.
func (f *Filter) Check(ctx context.Context, text string) (*intent.Recognition, []Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil, nil
	}
	r := f.live.Load()
	if r == nil {
		return nil, nil, ErrNoRecognizer
	}

	rec, err := r.Recognize(ctx, trimmed)
	if err != nil || rec == nil {
		return nil, nil, err
	}
	results, err := f.Run(ctx, rec)
	return rec, results, err
}

// Run executes the actions registered for rec.Intent.
func (f *Filter) Run(ctx context.Context, rec *intent.Recognition) ([]Result, error) {
	actions := f.actionsFor(rec.Intent)
	results := make([]Result, 0, len(actions))
	var errs []error

	for _, a := range actions {
		start := time.Now()
		summary, err := a.Run(ctx, rec)
		f.metrics.ActionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("intent", rec.Intent)))

		res := Result{Action: a.Name, Summary: summary}
		if err != nil {
			f.metrics.RecordActionCall(ctx, rec.Intent, observe.StatusError)
			observe.Logger(ctx).Warn("voicecmd: action failed",
				"action", a.Name,
				"intent", rec.Intent,
				"recognition_id", rec.ID,
				"err", err,
			)
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("voicecmd: %s: %w", a.Name, err))
		} else {
			f.metrics.RecordActionCall(ctx, rec.Intent, "ok")
			slog.Info("voicecmd: action executed",
				"action", a.Name,
				"intent", rec.Intent,
				"recognition_id", rec.ID,
				"result", summary,
			)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

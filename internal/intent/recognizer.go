package intent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonomatch/internal/observe"
	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/grammar"
)

// DefaultBudget is the error budget used when none is configured.
const DefaultBudget = 2.0

// Recognition is the result of a successful recognition.
type Recognition struct {
	// ID uniquely identifies this recognition. IDs sort by time.
	ID string `json:"id"`

	Intent string          `json:"intent"`
	Text   string          `json:"text"`
	Tokens []grammar.Token `json:"tokens"`

	// Strings renders Tokens, optional tokens included only when the
	// recognizer was configured with [WithOptionals].
	Strings []string          `json:"strings"`
	Params  map[string]string `json:"params,omitempty"`

	// BudgetLeft is what remained of the error budget after matching.
	BudgetLeft float64   `json:"budget_left"`
	At         time.Time `json:"at"`
}

// Option configures a [Recognizer].
type Option func(*Recognizer)

// WithBudget sets the error budget for intents that do not override it.
// Default: [DefaultBudget].
func WithBudget(b float64) Option {
	return func(r *Recognizer) {
		if b > 0 {
			r.budget = b
		}
	}
}

// WithOptionals includes matched optional phrases in [Recognition.Strings].
func WithOptionals(enabled bool) Option {
	return func(r *Recognizer) { r.withOptionals = enabled }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recognizer) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides the time source used for IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) {
		if now != nil {
			r.now = now
		}
	}
}

// Recognizer matches utterances against an ordered list of intents. The
// first intent whose grammar matches wins; intents are not ranked against
// each other. A Recognizer is immutable and safe for concurrent use.
type Recognizer struct {
	conv          *g2p.Converter
	intents       []*Intent
	budget        float64
	withOptionals bool
	metrics       *observe.Metrics
	now           func() time.Time
}

// NewRecognizer returns a recognizer over intents, which must have been
// compiled with conv.
func NewRecognizer(conv *g2p.Converter, intents []*Intent, opts ...Option) *Recognizer {
	r := &Recognizer{
		conv:    conv,
		intents: append([]*Intent(nil), intents...),
		budget:  DefaultBudget,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Converter returns the converter utterances are transliterated with.
func (r *Recognizer) Converter() *g2p.Converter { return r.conv }

// Intents returns the intents in matching order.
func (r *Recognizer) Intents() []*Intent {
	return append([]*Intent(nil), r.intents...)
}

// Lookup returns the intent called name.
func (r *Recognizer) Lookup(name string) (*Intent, bool) {
	for _, in := range r.intents {
		if in.Name == name {
			return in, true
		}
	}
	return nil, false
}

// Recognize transliterates text once and matches it against each intent in
// order. It returns nil and no error when no intent matches. Errors only
// come from transliteration.
func (r *Recognizer) Recognize(ctx context.Context, text string) (*Recognition, error) {
	ctx, span := observe.StartSpan(ctx, "intent.Recognize")
	defer span.End()

	start := time.Now()
	u, err := r.conv.Convert(ctx, text)
	r.metrics.G2PDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("language", r.conv.Language())))
	if err != nil {
		observe.FailSpan(span, err, "transliteration failed")
		r.metrics.RecordRecognition(ctx, "", observe.StatusError)
		return nil, fmt.Errorf("intent: recognize: %w", err)
	}

	rec := r.RecognizeUtterance(ctx, u)
	if rec == nil {
		span.SetAttributes(attribute.Bool("matched", false))
		observe.Logger(ctx).Debug("intent: no match", "text", text)
		return nil, nil
	}
	span.SetAttributes(
		attribute.Bool("matched", true),
		attribute.String("intent", rec.Intent),
		attribute.String("recognition_id", rec.ID),
	)
	observe.Logger(ctx).Debug("intent: recognized",
		"intent", rec.Intent, "id", rec.ID, "budget_left", rec.BudgetLeft)
	return rec, nil
}

// RecognizeUtterance matches an already converted utterance. It returns nil
// when no intent matches.
func (r *Recognizer) RecognizeUtterance(ctx context.Context, u g2p.Utterance) *Recognition {
	for _, in := range r.intents {
		budget := r.budget
		if in.Budget > 0 {
			budget = in.Budget
		}

		start := time.Now()
		m := in.Grammar.MatchUtterance(u, budget)
		r.metrics.MatchDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("intent", in.Name)))
		if m == nil {
			continue
		}

		r.metrics.RecordRecognition(ctx, in.Name, observe.StatusMatched)
		at := r.now()
		return &Recognition{
			ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
			Intent:     in.Name,
			Text:       u.Text,
			Tokens:     m.Tokens,
			Strings:    m.Strings(r.withOptionals),
			Params:     m.Params(),
			BudgetLeft: m.Budget,
			At:         at,
		}
	}
	r.metrics.RecordRecognition(ctx, "", observe.StatusUnmatched)
	return nil
}

// RecognizeAll recognizes independent utterances concurrently, at most
// limit at a time (unbounded when limit <= 0). The result has one entry per
// text, nil where nothing matched. The first transliteration error cancels
// the remaining work and is returned.
func (r *Recognizer) RecognizeAll(ctx context.Context, texts []string, limit int) ([]*Recognition, error) {
	out := make([]*Recognition, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, text := range texts {
		g.Go(func() error {
			rec, err := r.Recognize(ctx, text)
			if err != nil {
				return fmt.Errorf("utterance %d: %w", i, err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrNotReady is returned by [Live.Check] before a recognizer is stored.
var ErrNotReady = errors.New("intent: no recognizer loaded")

// Live holds the current [Recognizer] and lets it be replaced while
// requests are in flight, for example when intent files are reloaded.
type Live struct {
	p atomic.Pointer[Recognizer]
}

// NewLive returns a Live holding r, which may be nil.
func NewLive(r *Recognizer) *Live {
	l := &Live{}
	if r != nil {
		l.p.Store(r)
	}
	return l
}

// Load returns the current recognizer, or nil.
func (l *Live) Load() *Recognizer { return l.p.Load() }

// Store replaces the current recognizer.
func (l *Live) Store(r *Recognizer) { l.p.Store(r) }

// Check is a readiness check: it fails until a recognizer with at least one
// intent is stored.
func (l *Live) Check(context.Context) error {
	r := l.p.Load()
	if r == nil || len(r.intents) == 0 {
		return ErrNotReady
	}
	return nil
}

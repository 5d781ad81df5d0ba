package resilience

import (
	"context"

	"github.com/MrWong99/phonomatch/pkg/g2p"
)

// TransliteratorFallback implements [g2p.Transliterator] with automatic
// failover across several backends, for example espeak-ng first and a
// lexicon when the binary misbehaves. Each backend has its own breaker.
type TransliteratorFallback struct {
	group   *FallbackGroup[g2p.Transliterator]
	onError func(ctx context.Context, backend string, err error)
}

var _ g2p.Transliterator = (*TransliteratorFallback)(nil)

// TransliteratorOption configures a [TransliteratorFallback].
type TransliteratorOption func(*TransliteratorFallback)

// WithErrorHook registers fn to be called for every failed backend call,
// circuit-open rejections excluded. Used to feed error metrics.
func WithErrorHook(fn func(ctx context.Context, backend string, err error)) TransliteratorOption {
	return func(f *TransliteratorFallback) { f.onError = fn }
}

// NewTransliteratorFallback creates a [TransliteratorFallback] with primary
// as the preferred backend.
func NewTransliteratorFallback(primary g2p.Transliterator, primaryName string, cfg FallbackConfig, opts ...TransliteratorOption) *TransliteratorFallback {
	f := &TransliteratorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AddFallback registers an additional backend.
func (f *TransliteratorFallback) AddFallback(name string, t g2p.Transliterator) {
	f.group.AddFallback(name, t)
}

// Status returns the breaker state of every backend in order.
func (f *TransliteratorFallback) Status() []EntryStatus {
	return f.group.Status()
}

// Transliterate asks each healthy backend in turn until one answers.
func (f *TransliteratorFallback) Transliterate(ctx context.Context, text string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(name string, t g2p.Transliterator) (string, error) {
		out, err := t.Transliterate(ctx, text)
		if err != nil && f.onError != nil {
			f.onError(ctx, name, err)
		}
		return out, err
	})
}

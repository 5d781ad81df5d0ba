// Package g2p turns written text into phoneme sequences ready for matching.
//
// The heavy lifting (grapheme-to-phoneme transliteration for a natural
// language) is delegated to a [Transliterator]. Several implementations ship
// with the package:
//
//   - [Identity] folds case and diacritics and passes letters through. It is
//     only useful for languages written close to their pronunciation, and in
//     tests.
//   - [Lexicon] looks words up in a pronunciation dictionary and delegates
//     unknown words to a fallback.
//   - [Espeak] runs the external espeak-ng synthesiser in IPA mode.
//   - [Cache] memoises another transliterator in a SQLite database.
//
// A [Converter] wraps a transliterator with the language-independent steps:
// punctuation removal, word splitting, alignment of the transliterated words
// with the original ones, and alphabet encoding.
//
// All implementations in this package are safe for concurrent use.
package g2p

import (
	"context"
	"errors"
)

// ErrEmptyLanguage is returned when a transliterator that needs a language
// is constructed without one.
var ErrEmptyLanguage = errors.New("g2p: language is required")

// Transliterator converts text in a configured natural language to IPA.
//
// Implementations receive text that has already been stripped of punctuation
// and normalised to single spaces between words. Output words must be
// separated by whitespace. Implementations must be safe for concurrent use.
type Transliterator interface {
	Transliterate(ctx context.Context, text string) (string, error)
}

// TransliteratorFunc adapts a plain function to [Transliterator].
type TransliteratorFunc func(ctx context.Context, text string) (string, error)

// Transliterate calls f(ctx, text).
func (f TransliteratorFunc) Transliterate(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

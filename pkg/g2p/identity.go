package g2p

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Identity is a [Transliterator] that lowercases text and strips
// diacritics, leaving letters as they are. Its zero value is ready to use.
type Identity struct{}

var _ Transliterator = Identity{}

// Transliterate implements [Transliterator]. It never fails.
func (Identity) Transliterate(_ context.Context, text string) (string, error) {
	return foldDiacritics(strings.ToLower(text)), nil
}

// foldDiacritics decomposes s and drops the combining marks. Transformers
// keep state, so a new chain is built on every call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

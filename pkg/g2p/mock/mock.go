// Package mock provides a test double for the g2p.Transliterator interface.
//
// Transliterator answers from a fixed table, records every call, and can be
// told to fail:
//
//	tr := &mock.Transliterator{Table: map[string]string{"les": "le"}}
//	conv := g2p.NewConverter(tr, g2p.WithWordProcessing(true))
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/phonomatch/pkg/g2p"
)

var _ g2p.Transliterator = (*Transliterator)(nil)

// Transliterator is a mock implementation of g2p.Transliterator.
type Transliterator struct {
	mu sync.Mutex

	// Table maps input words to their transliteration. Words missing from
	// the table are returned unchanged.
	Table map[string]string

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records the text of every call, in order.
	Calls []string
}

// Transliterate records the call and translates text word by word.
func (t *Transliterator) Transliterate(_ context.Context, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, text)
	if t.Err != nil {
		return "", t.Err
	}
	words := strings.Fields(text)
	for i, w := range words {
		if out, ok := t.Table[w]; ok {
			words[i] = out
		}
	}
	return strings.Join(words, " "), nil
}

// CallCount returns how many times Transliterate was called.
func (t *Transliterator) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

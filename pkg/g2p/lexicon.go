package g2p

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// lexiconFile is the on-disk YAML layout of a pronunciation dictionary.
//
//	language: fra-Latn
//	entries:
//	  ouvrez: uvʁe
//	  d'eau: do
type lexiconFile struct {
	Language string            `yaml:"language"`
	Entries  map[string]string `yaml:"entries"`
}

// Lexicon is a [Transliterator] backed by a pronunciation dictionary. Words
// are looked up case-insensitively, ignoring punctuation; words missing from
// the dictionary are handed to the fallback transliterator one at a time.
//
// Lexicon is read-only after construction and safe for concurrent use.
type Lexicon struct {
	language string
	entries  map[string]string
	fallback Transliterator
}

var _ Transliterator = (*Lexicon)(nil)

// NewLexicon builds a lexicon from word → IPA entries. When fallback is nil,
// unknown words go through [Identity].
func NewLexicon(language string, entries map[string]string, fallback Transliterator) *Lexicon {
	if fallback == nil {
		fallback = Identity{}
	}
	l := &Lexicon{
		language: language,
		entries:  make(map[string]string, len(entries)),
		fallback: fallback,
	}
	for word, ipa := range entries {
		l.entries[lexiconKey(word)] = ipa
	}
	return l
}

// LoadLexicon decodes a YAML dictionary from r.
func LoadLexicon(r io.Reader, fallback Transliterator) (*Lexicon, error) {
	var f lexiconFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("g2p: decode lexicon: %w", err)
	}
	if f.Language == "" {
		return nil, ErrEmptyLanguage
	}
	return NewLexicon(f.Language, f.Entries, fallback), nil
}

// LoadLexiconFile reads a YAML dictionary from path.
func LoadLexiconFile(path string, fallback Transliterator) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("g2p: open lexicon %q: %w", path, err)
	}
	defer f.Close()

	l, err := LoadLexicon(f, fallback)
	if err != nil {
		return nil, fmt.Errorf("g2p: load lexicon %q: %w", path, err)
	}
	return l, nil
}

// Language returns the language declared by the dictionary.
func (l *Lexicon) Language() string { return l.language }

// Len returns the number of dictionary entries.
func (l *Lexicon) Len() int { return len(l.entries) }

// Transliterate implements [Transliterator].
func (l *Lexicon) Transliterate(ctx context.Context, text string) (string, error) {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if ipa, ok := l.entries[lexiconKey(w)]; ok {
			out = append(out, ipa)
			continue
		}
		ipa, err := l.fallback.Transliterate(ctx, w)
		if err != nil {
			return "", err
		}
		// Keep one output word per input word.
		out = append(out, strings.Join(strings.Fields(ipa), ""))
	}
	return strings.Join(out, " "), nil
}

func lexiconKey(word string) string {
	return norm.NFC.String(strings.ToLower(stripPunctuation(word)))
}

package g2p

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

// Utterance is a piece of text split into words, each paired with its
// phoneme encoding. Words[i] and Phonemes[i] always describe the same word.
type Utterance struct {
	// Text is the input as given to [Converter.Convert].
	Text string

	// Words holds the original words, punctuation included, so that spans
	// captured during matching can be reported verbatim.
	Words []string

	// Phonemes holds the encoded transliteration of each word.
	Phonemes phoneme.Sequence
}

// Span joins the original words [from, from+n). When n is 0 or exceeds the
// available words, every word from from onward is used.
func (u Utterance) Span(from, n int) string {
	if from >= len(u.Words) {
		return ""
	}
	end := len(u.Words)
	if n > 0 && from+n < end {
		end = from + n
	}
	return strings.Join(u.Words[from:end], " ")
}

// ConverterOption is a functional option for configuring a [Converter].
type ConverterOption func(*Converter)

// WithLanguage records the language the transliterator is configured for.
// It is used for logging and cache keys only.
func WithLanguage(language string) ConverterOption {
	return func(c *Converter) {
		c.language = language
	}
}

// WithWordProcessing makes the converter transliterate every word on its
// own instead of the whole sentence at once. Some transliterators are more
// accurate per word, others use sentence context (liaison, elision).
// Default: false.
func WithWordProcessing(enabled bool) ConverterOption {
	return func(c *Converter) {
		c.wordProcessing = enabled
	}
}

// WithAlphabet overrides the phoneme alphabet. Default:
// [phoneme.DefaultAlphabet].
func WithAlphabet(a *phoneme.Alphabet) ConverterOption {
	return func(c *Converter) {
		if a != nil {
			c.alphabet = a
		}
	}
}

// Converter turns text into an [Utterance] using a [Transliterator]. It is
// read-only after construction and safe for concurrent use.
type Converter struct {
	t              Transliterator
	alphabet       *phoneme.Alphabet
	language       string
	wordProcessing bool
}

// NewConverter returns a [Converter] backed by t.
func NewConverter(t Transliterator, opts ...ConverterOption) *Converter {
	c := &Converter{
		t:        t,
		alphabet: phoneme.DefaultAlphabet(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Language returns the configured language tag.
func (c *Converter) Language() string { return c.language }

// Alphabet returns the alphabet used to encode phonemes.
func (c *Converter) Alphabet() *phoneme.Alphabet { return c.alphabet }

// Convert splits text into words and transliterates them.
//
// Punctuation is removed before transliteration; a token made only of
// punctuation is dropped. In sentence mode, when the transliterator returns a
// different number of words than it was given, the converter retries word by
// word so that words and phonemes stay aligned.
func (c *Converter) Convert(ctx context.Context, text string) (Utterance, error) {
	u := Utterance{Text: text}
	var clean []string
	for _, w := range strings.Fields(text) {
		if s := stripPunctuation(w); s != "" {
			u.Words = append(u.Words, w)
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return u, nil
	}

	ipa, err := c.transliterate(ctx, clean)
	if err != nil {
		return Utterance{}, err
	}
	u.Phonemes = c.alphabet.EncodeWords(ipa)
	return u, nil
}

// Reference converts a fixed text used by a grammar and returns its phoneme
// sequence.
func (c *Converter) Reference(ctx context.Context, text string) (phoneme.Sequence, error) {
	u, err := c.Convert(ctx, text)
	if err != nil {
		return nil, err
	}
	return u.Phonemes, nil
}

func (c *Converter) transliterate(ctx context.Context, words []string) ([]string, error) {
	if !c.wordProcessing {
		sentence := strings.Join(words, " ")
		out, err := c.t.Transliterate(ctx, sentence)
		if err != nil {
			return nil, fmt.Errorf("g2p: transliterate %q: %w", sentence, err)
		}
		ipa := strings.Fields(out)
		if len(ipa) == len(words) {
			return ipa, nil
		}
		slog.Debug("g2p: sentence transliteration changed word count, retrying per word",
			"language", c.language,
			"words", len(words),
			"transliterated", len(ipa),
		)
	}

	ipa := make([]string, len(words))
	for i, w := range words {
		out, err := c.t.Transliterate(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("g2p: transliterate %q: %w", w, err)
		}
		// A word that transliterates to several tokens stays one word.
		ipa[i] = strings.Join(strings.Fields(out), "")
	}
	return ipa, nil
}

// stripPunctuation removes punctuation from w. Hyphens are kept since they
// join compound words.
func stripPunctuation(w string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '-' {
			return -1
		}
		return r
	}, w)
}

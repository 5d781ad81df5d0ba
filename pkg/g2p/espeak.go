package g2p

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const defaultEspeakBinary = "espeak-ng"

// espeakVoices maps ISO 639-3 language codes to espeak-ng voice names.
var espeakVoices = map[string]string{
	"fra": "fr",
	"eng": "en-us",
	"deu": "de",
	"spa": "es",
	"ita": "it",
	"por": "pt",
	"nld": "nl",
}

// EspeakVoice returns the espeak-ng voice for a language tag such as
// "fra-Latn" or "fra-Latn-p". Tags without a known mapping are returned
// unchanged, which lets callers pass a voice name directly.
func EspeakVoice(language string) string {
	code, _, _ := strings.Cut(language, "-")
	if v, ok := espeakVoices[strings.ToLower(code)]; ok {
		return v
	}
	return language
}

// EspeakOption is a functional option for configuring an [Espeak].
type EspeakOption func(*Espeak)

// WithEspeakBinary sets the executable to run. Default: "espeak-ng".
func WithEspeakBinary(path string) EspeakOption {
	return func(e *Espeak) {
		if path != "" {
			e.binary = path
		}
	}
}

// Espeak is a [Transliterator] that shells out to espeak-ng in IPA mode.
// Each call starts a process, so wrapping it in a [Cache] is recommended.
type Espeak struct {
	binary string
	voice  string
}

var _ Transliterator = (*Espeak)(nil)

// NewEspeak returns an [Espeak] for the given language tag or voice name.
func NewEspeak(language string, opts ...EspeakOption) (*Espeak, error) {
	if language == "" {
		return nil, ErrEmptyLanguage
	}
	e := &Espeak{
		binary: defaultEspeakBinary,
		voice:  EspeakVoice(language),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Transliterate implements [Transliterator]. The text is written to the
// process on stdin, never on the command line, so words starting with a dash
// are read as text. Clause breaks in the espeak output are flattened to
// single spaces.
func (e *Espeak) Transliterate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, "-q", "--ipa", "-v", e.voice, "--stdin")
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("espeak: %w: %s", err, msg)
		}
		return "", fmt.Errorf("espeak: %w", err)
	}
	return strings.Join(strings.Fields(stdout.String()), " "), nil
}

// Probe runs espeak-ng once to check that the binary and voice work.
func (e *Espeak) Probe(ctx context.Context) error {
	_, err := e.Transliterate(ctx, "a")
	return err
}

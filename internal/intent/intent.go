package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/grammar"
	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

// ErrLanguageMismatch is returned when an intent file declares a language
// other than the converter's.
var ErrLanguageMismatch = errors.New("intent: language mismatch")

// Intent is a compiled intent: a definition and its built grammar.
type Intent struct {
	Definition
	Grammar *grammar.Grammar
}

// CompileOption configures [Compile], [CompileFile] and [LoadAll].
type CompileOption func(*compileOptions)

type compileOptions struct {
	maxWords int
}

// WithDefaultMaxWords sets how many words a parametric node without its own
// max_words may capture. Zero keeps the grammar default.
func WithDefaultMaxWords(n int) CompileOption {
	return func(o *compileOptions) { o.maxWords = n }
}

// Compile builds the grammar of d using conv to transliterate reference
// texts.
func Compile(ctx context.Context, d Definition, conv *g2p.Converter, scorer *phoneme.Scorer, opts ...CompileOption) (*Intent, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("intent %q: %w", d.Name, err)
	}
	var co compileOptions
	for _, o := range opts {
		o(&co)
	}
	b := grammar.NewBuilder()
	appendNodes(b, grammar.Root, d.Nodes, co.maxWords)

	var gopts []grammar.Option
	if scorer != nil {
		gopts = append(gopts, grammar.WithScorer(scorer))
	}
	g, err := b.Build(ctx, conv, gopts...)
	if err != nil {
		return nil, fmt.Errorf("intent %q: %w", d.Name, err)
	}
	return &Intent{Definition: d, Grammar: g}, nil
}

func appendNodes(b *grammar.Builder, parent grammar.Handle, nodes []NodeDef, maxWords int) {
	for _, n := range nodes {
		h := b.Append(parent, n.spec(maxWords))
		appendNodes(b, h, n.Children, maxWords)
	}
}

// CompileFile compiles every intent of f. Errors of all intents are joined.
func CompileFile(ctx context.Context, f *File, conv *g2p.Converter, scorer *phoneme.Scorer, opts ...CompileOption) ([]*Intent, error) {
	if f.Language != "" && conv.Language() != "" && f.Language != conv.Language() {
		return nil, fmt.Errorf("%w: file is %q, transliterator is %q", ErrLanguageMismatch, f.Language, conv.Language())
	}
	var (
		out  []*Intent
		errs []error
	)
	for _, d := range f.Intents {
		in, err := Compile(ctx, d, conv, scorer, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, in)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadAll loads and compiles the given intent files in order. Intent names
// must be unique across files.
func LoadAll(ctx context.Context, paths []string, conv *g2p.Converter, scorer *phoneme.Scorer, opts ...CompileOption) ([]*Intent, error) {
	var (
		out   []*Intent
		errs  []error
		owner = make(map[string]string)
	)
	for _, p := range paths {
		f, err := LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		intents, err := CompileFile(ctx, f, conv, scorer, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("intent: compile %q: %w", p, err))
			continue
		}
		for _, in := range intents {
			if prev, ok := owner[in.Name]; ok {
				errs = append(errs, fmt.Errorf("intent: %q defined in both %q and %q", in.Name, prev, p))
				continue
			}
			owner[in.Name] = p
			out = append(out, in)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Outline renders the grammar tree one node per line, children indented by
// two spaces, e.g. "alternative[open|close]".
func (in *Intent) Outline() []string {
	var lines []string
	var walk func(h grammar.Handle, depth int)
	walk = func(h grammar.Handle, depth int) {
		for _, c := range in.Grammar.Children(h) {
			lines = append(lines, strings.Repeat("  ", depth)+in.Grammar.Describe(c))
			walk(c, depth+1)
		}
	}
	walk(grammar.Root, 0)
	return lines
}

package grammar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

var (
	// ErrAdjacentParametric is returned by [Builder.Build] when a parametric
	// node directly follows another one, possibly with only optional nodes in
	// between. The first parameter would have no phrase to stop at.
	ErrAdjacentParametric = errors.New("grammar: parametric node follows another parametric node")

	// ErrInvalidNode is returned by [Builder.Build] for nodes that are
	// missing required content.
	ErrInvalidNode = errors.New("grammar: invalid node")

	// ErrUnknownParent is returned by [Builder.Build] when a node was
	// appended to a handle the builder did not issue.
	ErrUnknownParent = errors.New("grammar: unknown parent handle")
)

// Choice is one alternative of an Alternative node.
type Choice struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Spec describes a node before its phrases are transliterated. Use the
// constructor functions [Basic], [Alternative], [Optional], [Parametric]
// and [End].
type Spec struct {
	kind     Kind
	forms    []form
	name     string
	maxWords int
}

// Basic describes a node that matches one fixed phrase and emits id.
func Basic(id, text string) Spec {
	return Spec{kind: KindBasic, forms: []form{{id: id, text: text}}}
}

// Alternative describes a node that matches the best scoring of its choices
// and emits that choice's ID.
func Alternative(choices ...Choice) Spec {
	s := Spec{kind: KindAlternative}
	for _, c := range choices {
		s.forms = append(s.forms, form{id: c.ID, text: c.Text})
	}
	return s
}

// Optional describes a node that may match one of texts. It never fails a
// match on its own.
func Optional(texts ...string) Spec {
	s := Spec{kind: KindOptional}
	for _, t := range texts {
		s.forms = append(s.forms, form{text: t})
	}
	return s
}

// ParamOption is a functional option for a [Parametric] spec.
type ParamOption func(*Spec)

// WithMaxWords bounds the number of words the parameter may capture when it
// is followed by another phrase. Default: [DefaultMaxParamWords].
func WithMaxWords(n int) ParamOption {
	return func(s *Spec) {
		if n > 0 {
			s.maxWords = n
		}
	}
}

// Parametric describes a node that captures free text up to the phrase that
// follows it, or to the end of the utterance.
func Parametric(name string, opts ...ParamOption) Spec {
	s := Spec{kind: KindParametric, name: name, maxWords: DefaultMaxParamWords}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// End describes a node that only matches once the utterance is exhausted.
func End() Spec {
	return Spec{kind: KindEnd}
}

// Kind returns the kind of node s describes.
func (s Spec) Kind() Kind { return s.kind }

// Builder assembles a grammar tree. Problems found while appending are
// collected and reported together by [Builder.Build].
//
// A Builder is not safe for concurrent use.
type Builder struct {
	nodes []node
	errs  []error
}

// NewBuilder returns a builder holding only the root node.
func NewBuilder() *Builder {
	return &Builder{nodes: []node{{kind: KindRoot, parent: -1}}}
}

// Append adds a node described by s as the last child of parent and returns
// its handle.
func (b *Builder) Append(parent Handle, s Spec) Handle {
	if parent < 0 || int(parent) >= len(b.nodes) {
		b.errs = append(b.errs, fmt.Errorf("%w: %d", ErrUnknownParent, parent))
		parent = Root
	}
	h := Handle(len(b.nodes))

	if err := validate(s); err != nil {
		b.errs = append(b.errs, fmt.Errorf("node %d: %w", h, err))
	}
	if s.kind == KindParametric {
		if prev, ok := b.precedingParametric(parent); ok {
			b.errs = append(b.errs, fmt.Errorf("%w: %q after %q", ErrAdjacentParametric, s.name, prev))
		}
	}

	b.nodes = append(b.nodes, node{
		kind:     s.kind,
		parent:   parent,
		index:    len(b.nodes[parent].children),
		forms:    s.forms,
		name:     s.name,
		maxWords: s.maxWords,
	})
	b.nodes[parent].children = append(b.nodes[parent].children, h)
	return h
}

// AppendAll appends every spec to parent in order and returns the handle of
// the last one.
func (b *Builder) AppendAll(parent Handle, specs ...Spec) Handle {
	h := parent
	for _, s := range specs {
		h = b.Append(parent, s)
	}
	return h
}

// precedingParametric looks back over parent's trailing optional children
// for a parametric node.
func (b *Builder) precedingParametric(parent Handle) (string, bool) {
	children := b.nodes[parent].children
	for i := len(children) - 1; i >= 0; i-- {
		n := &b.nodes[children[i]]
		switch n.kind {
		case KindOptional:
			continue
		case KindParametric:
			return n.name, true
		}
		return "", false
	}
	return "", false
}

func validate(s Spec) error {
	switch s.kind {
	case KindBasic, KindAlternative, KindOptional:
		if len(s.forms) == 0 {
			return fmt.Errorf("%w: %s node without phrases", ErrInvalidNode, s.kind)
		}
		for _, f := range s.forms {
			if strings.TrimSpace(f.text) == "" {
				return fmt.Errorf("%w: %s node with empty phrase", ErrInvalidNode, s.kind)
			}
			if s.kind != KindOptional && f.id == "" {
				return fmt.Errorf("%w: %s phrase %q without id", ErrInvalidNode, s.kind, f.text)
			}
		}
	case KindParametric:
		if s.name == "" {
			return fmt.Errorf("%w: parametric node without name", ErrInvalidNode)
		}
	case KindEnd:
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidNode, s.kind)
	}
	return nil
}

// Option is a functional option for configuring a [Grammar].
type Option func(*Grammar)

// WithScorer sets the scorer used to compare phonemes. Default:
// [phoneme.NewScorer] with no options.
func WithScorer(s *phoneme.Scorer) Option {
	return func(g *Grammar) {
		if s != nil {
			g.scorer = s
		}
	}
}

// Build transliterates every phrase with conv and returns the finished
// grammar. The builder can be reused afterwards; the grammar does not share
// state with it.
func (b *Builder) Build(ctx context.Context, conv *g2p.Converter, opts ...Option) (*Grammar, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &Grammar{
		nodes:  make([]node, len(b.nodes)),
		conv:   conv,
		scorer: phoneme.NewScorer(),
	}
	for _, o := range opts {
		o(g)
	}

	for i, n := range b.nodes {
		n.children = append([]Handle(nil), n.children...)
		n.forms = append([]form(nil), n.forms...)
		for j := range n.forms {
			seq, err := conv.Reference(ctx, n.forms[j].text)
			if err != nil {
				return nil, fmt.Errorf("grammar: build: %w", err)
			}
			n.forms[j].ref = seq.Flatten()
		}
		g.nodes[i] = n
	}
	return g, nil
}

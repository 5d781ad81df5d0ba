// Package grammar matches transliterated utterances against a tree of
// phrase nodes and extracts intent tokens.
//
// A grammar is built once with a [Builder] and then matched many times. Each
// node consumes a prefix of the remaining phonemes and spends part of a
// shared error budget; a match fails as soon as the budget is exhausted.
//
//	b := grammar.NewBuilder()
//	b.Append(grammar.Root, grammar.Alternative(
//		grammar.Choice{ID: "open", Text: "Ouvrez"},
//		grammar.Choice{ID: "close", Text: "Fermez"},
//	))
//	b.Append(grammar.Root, grammar.Basic("the", "les"))
//	g, err := b.Build(ctx, conv)
//	m, err := g.MatchText(ctx, "Ouvré lé rideaux", 2)
//
// Built grammars are read-only and safe for concurrent use.
package grammar

import "github.com/MrWong99/phonomatch/pkg/phoneme"

// Kind identifies the behaviour of a node.
type Kind uint8

const (
	KindRoot Kind = iota
	KindBasic
	KindAlternative
	KindParametric
	KindOptional
	KindEnd
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindBasic:
		return "basic"
	case KindAlternative:
		return "alternative"
	case KindParametric:
		return "parametric"
	case KindOptional:
		return "optional"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Handle refers to a node of a grammar. Handles are only meaningful for the
// [Builder] or [Grammar] that issued them.
type Handle int

// Root is the handle of the root node every grammar starts with. It matches
// nothing itself; its children are matched in order.
const Root Handle = 0

// DefaultMaxParamWords is the default number of words a parametric node
// tries to capture when looking for the phrase that follows it.
const DefaultMaxParamWords = 8

// form is one accepted phrase of a node together with its reference
// phonemes.
type form struct {
	id   string
	text string
	ref  phoneme.Word
}

// node is a grammar node stored in the grammar's arena. parent and index
// locate the node among its siblings, which a parametric node needs to find
// the phrase that follows it.
type node struct {
	kind     Kind
	parent   Handle
	index    int
	children []Handle

	// Basic, Alternative and Optional.
	forms []form

	// Parametric.
	name     string
	maxWords int
}

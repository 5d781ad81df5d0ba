package grammar

import (
	"fmt"

	"github.com/antzucaro/matchr"
)

const defaultLintSimilarity = 0.92

// LintOption is a functional option for [Grammar.Lint].
type LintOption func(*linter)

// WithLintBudget flags phrase pairs whose phoneme edit distance is below
// budget, i.e. pairs a match with that budget could confuse. Default: 2.
func WithLintBudget(budget float64) LintOption {
	return func(l *linter) {
		l.budget = budget
	}
}

// WithLintSimilarity flags phrase pairs whose Jaro-Winkler similarity on the
// phoneme strings reaches threshold. Default: 0.92.
func WithLintSimilarity(threshold float64) LintOption {
	return func(l *linter) {
		l.similarity = threshold
	}
}

// LintWarning reports two phrases that compete for the same input and sound
// alike.
type LintWarning struct {
	Node       Handle  `json:"node"`
	Other      Handle  `json:"other"`
	A          string  `json:"a"`
	B          string  `json:"b"`
	Distance   int     `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// String renders the warning on one line.
func (w LintWarning) String() string {
	return fmt.Sprintf("node %d/%d: %q and %q sound alike (distance %d, similarity %.2f)",
		w.Node, w.Other, w.A, w.B, w.Distance, w.Similarity)
}

type linter struct {
	g          *Grammar
	budget     float64
	similarity float64
	warnings   []LintWarning
}

// Lint looks for phrases the matcher could mistake for one another: the
// forms of an Alternative or Optional node among themselves, and the forms
// of an Optional node against the node that follows it.
func (g *Grammar) Lint(opts ...LintOption) []LintWarning {
	l := &linter{g: g, budget: 2, similarity: defaultLintSimilarity}
	for _, o := range opts {
		o(l)
	}

	for h := range g.nodes {
		n := &g.nodes[h]
		switch n.kind {
		case KindAlternative, KindOptional:
			for i := range n.forms {
				for j := i + 1; j < len(n.forms); j++ {
					l.compare(Handle(h), Handle(h), n.forms[i], n.forms[j])
				}
			}
		}
		if n.kind != KindOptional || n.parent < 0 {
			continue
		}
		siblings := g.nodes[n.parent].children
		if n.index+1 >= len(siblings) {
			continue
		}
		next := siblings[n.index+1]
		for _, a := range n.forms {
			for _, b := range g.nodes[next].forms {
				l.compare(Handle(h), next, a, b)
			}
		}
	}
	return l.warnings
}

func (l *linter) compare(h, other Handle, a, b form) {
	alphabet := l.g.conv.Alphabet()
	pa, pb := alphabet.Decode(a.ref), alphabet.Decode(b.ref)
	dist := matchr.Levenshtein(pa, pb)
	sim := matchr.JaroWinkler(pa, pb, false)
	if float64(dist) >= l.budget && sim < l.similarity {
		return
	}
	l.warnings = append(l.warnings, LintWarning{
		Node:       h,
		Other:      other,
		A:          a.text,
		B:          b.text,
		Distance:   dist,
		Similarity: sim,
	})
}

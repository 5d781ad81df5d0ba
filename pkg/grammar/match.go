package grammar

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

// matcher holds the state of one match: the grammar and the utterance whose
// words parametric nodes capture from. debug is set when the default logger
// accepts debug records, so the hot path skips building log attributes.
type matcher struct {
	g     *Grammar
	words g2p.Utterance
	debug bool
}

// walk matches the children of parent in order, threading the budget from
// one to the next. A node that matches and has children of its own has them
// matched right after it. It returns 0 as soon as a node fails.
func (m *matcher) walk(parent Handle, s *phoneme.Stream, budget float64, tokens []Token) ([]Token, float64) {
	for _, h := range m.g.nodes[parent].children {
		score, tok := m.matchPrefix(h, s, budget)
		if m.debug {
			slog.Debug("grammar: node scored",
				"node", m.g.Describe(h), "budget", budget, "score", score, "position", s.Position())
		}
		if score <= 0 {
			return nil, 0
		}
		budget = score
		if tok != nil {
			tokens = append(tokens, *tok)
		}
		if len(m.g.nodes[h].children) > 0 {
			if tokens, budget = m.walk(h, s, budget, tokens); budget <= 0 {
				return nil, 0
			}
		}
	}
	return tokens, budget
}

// matchPrefix matches node h against the front of s. On success it returns
// the budget left and advances s past what the node consumed; it may return
// a nil token when the node produces none. A score of 0 means failure, in
// which case s is left as is.
func (m *matcher) matchPrefix(h Handle, s *phoneme.Stream, budget float64) (float64, *Token) {
	if budget <= 0 {
		return 0, nil
	}
	n := &m.g.nodes[h]
	switch n.kind {
	case KindBasic:
		return m.matchBasic(n, s, budget)
	case KindAlternative:
		return m.matchAlternative(n, s, budget)
	case KindOptional:
		return m.matchOptional(n, s, budget)
	case KindParametric:
		return m.matchParametric(n, s, budget)
	case KindEnd:
		if !s.Empty() {
			return 0, nil
		}
		return budget, nil
	}
	panic(fmt.Sprintf("grammar: cannot match %s node", n.kind))
}

// matchBasic drops any word it only partly consumed, so a phrase that ends
// inside a word does not leave a fragment for the next node.
func (m *matcher) matchBasic(n *node, s *phoneme.Stream, budget float64) (float64, *Token) {
	f := n.forms[0]
	score, consumed := m.g.scorer.Budgeted(f.ref, s.Phonemes(), budget)
	if score <= 0 {
		return 0, nil
	}
	s.Advance(consumed, true)
	return score, &Token{Kind: TokenID, Value: f.id}
}

func (m *matcher) matchAlternative(n *node, s *phoneme.Stream, budget float64) (float64, *Token) {
	best, score, consumed := m.bestForm(n, s, budget)
	if best < 0 {
		return 0, nil
	}
	s.Advance(consumed, false)
	return score, &Token{Kind: TokenID, Value: n.forms[best].id}
}

// matchOptional never fails: when no form matches, or nothing is left to
// match, the budget is returned untouched without a token.
func (m *matcher) matchOptional(n *node, s *phoneme.Stream, budget float64) (float64, *Token) {
	if s.Empty() {
		return budget, nil
	}
	best, score, consumed := m.bestForm(n, s, budget)
	if best < 0 {
		return budget, nil
	}
	s.Advance(consumed, false)
	return score, &Token{Kind: TokenOptional, Value: n.forms[best].text}
}

// bestForm scores every form of n against the front of s and returns the
// index of the strictly highest, the first one winning ties. best is -1 when
// no form scores above 0.
func (m *matcher) bestForm(n *node, s *phoneme.Stream, budget float64) (best int, score float64, consumed int) {
	cand := s.Phonemes()
	best = -1
	for i, f := range n.forms {
		sc, c := m.g.scorer.Budgeted(f.ref, cand, budget)
		if sc > score {
			best, score, consumed = i, sc, c
		}
	}
	return best, score, consumed
}

// matchParametric captures words up to the phrase matched by the next
// sibling. Every split point up to the node's word limit is tried on a copy
// of the stream; the split that lets the sibling score best wins. Optional
// siblings that match nowhere are skipped in favour of the sibling after
// them. Without a following sibling, or with an End node next, the rest of
// the utterance is captured, possibly nothing at all.
//
// The budget is returned unchanged: free text costs nothing, the following
// nodes pay for their own phrases once matched for real.
func (m *matcher) matchParametric(n *node, s *phoneme.Stream, budget float64) (float64, *Token) {
	siblings := m.g.nodes[n.parent].children

	for next := n.index + 1; ; next++ {
		if next >= len(siblings) || m.g.nodes[siblings[next]].kind == KindEnd {
			tok := m.capture(n, s, s.Words())
			return budget, tok
		}

		sib := siblings[next]
		if m.g.nodes[sib].kind == KindParametric {
			// Rejected by Builder.Build.
			return 0, nil
		}

		split, best := 0, 0.0
		limit := min(n.maxWords, s.Words()-1)
		for i := 1; i <= limit; i++ {
			trial := s.SkipWords(i)
			score, tok := m.matchPrefix(sib, &trial, budget)
			if tok == nil {
				// An optional node that found nothing proves nothing.
				score = 0
			}
			if score > best {
				split, best = i, score
			}
		}
		if m.debug {
			slog.Debug("grammar: parametric split",
				"param", n.name, "next", m.g.Describe(sib), "words", split, "score", best)
		}
		if best > 0 {
			return budget, m.capture(n, s, split)
		}
		if m.g.nodes[sib].kind != KindOptional {
			return 0, nil
		}
	}
}

// capture consumes the next words of s and returns them verbatim as the
// node's parameter.
func (m *matcher) capture(n *node, s *phoneme.Stream, words int) *Token {
	value := m.words.Span(s.Position(), words)
	s.AdvanceWords(words)
	return &Token{Kind: TokenParameter, Name: n.name, Value: value}
}

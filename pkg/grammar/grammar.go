package grammar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

// Grammar is a built, immutable grammar tree.
type Grammar struct {
	nodes  []node
	conv   *g2p.Converter
	scorer *phoneme.Scorer
}

// Converter returns the converter the grammar was built with. Utterances
// passed to [Grammar.MatchUtterance] must come from an equivalent one.
func (g *Grammar) Converter() *g2p.Converter { return g.conv }

// Children returns the children of h in order.
func (g *Grammar) Children(h Handle) []Handle {
	if !g.valid(h) {
		return nil
	}
	return append([]Handle(nil), g.nodes[h].children...)
}

// Kind returns the kind of node h.
func (g *Grammar) Kind(h Handle) Kind {
	if !g.valid(h) {
		return KindRoot
	}
	return g.nodes[h].kind
}

// Describe renders node h for diagnostics, e.g. `alternative[open|close]`.
func (g *Grammar) Describe(h Handle) string {
	if !g.valid(h) {
		return fmt.Sprintf("invalid(%d)", h)
	}
	n := &g.nodes[h]
	switch n.kind {
	case KindBasic, KindAlternative:
		ids := make([]string, len(n.forms))
		for i, f := range n.forms {
			ids[i] = f.id
		}
		return n.kind.String() + "[" + strings.Join(ids, "|") + "]"
	case KindOptional:
		texts := make([]string, len(n.forms))
		for i, f := range n.forms {
			texts[i] = f.text
		}
		return "optional[" + strings.Join(texts, "|") + "]"
	case KindParametric:
		return "parametric[" + n.name + "]"
	default:
		return n.kind.String()
	}
}

// MatchText converts text and matches it from the root.
func (g *Grammar) MatchText(ctx context.Context, text string, budget float64) (*Match, error) {
	u, err := g.conv.Convert(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("grammar: match: %w", err)
	}
	return g.MatchUtterance(u, budget), nil
}

// MatchUtterance matches an already converted utterance from the root. It
// returns nil when the grammar does not match.
func (g *Grammar) MatchUtterance(u g2p.Utterance, budget float64) *Match {
	return g.MatchFrom(Root, u, budget)
}

// MatchFrom matches the children of h, and their descendants, against u.
// It returns nil when the match fails, including when budget is not
// positive.
func (g *Grammar) MatchFrom(h Handle, u g2p.Utterance, budget float64) *Match {
	if !g.valid(h) || budget <= 0 {
		return nil
	}
	m := matcher{g: g, words: u, debug: slog.Default().Enabled(context.Background(), slog.LevelDebug)}
	stream := phoneme.NewStream(u.Phonemes)
	tokens, left := m.walk(h, &stream, budget, []Token{})
	if left <= 0 {
		return nil
	}
	return &Match{Tokens: tokens, Budget: left}
}

func (g *Grammar) valid(h Handle) bool {
	return h >= 0 && int(h) < len(g.nodes)
}

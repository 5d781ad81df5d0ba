package phoneme

// DefaultThreshold is the per-phoneme confusion score above which two
// phonemes are considered the same.
const DefaultThreshold = 0.99

// errorCost is the budget charged for one inserted, deleted or substituted
// phoneme.
const errorCost = 1.0

// Weights scores how likely phoneme a is to be heard as phoneme b, from 0
// (never confused) to 1 (indistinguishable).
type Weights interface {
	Score(a, b Index) float64
}

// WeightsFunc adapts a plain function to [Weights].
type WeightsFunc func(a, b Index) float64

// Score calls f(a, b).
func (f WeightsFunc) Score(a, b Index) float64 { return f(a, b) }

// IdentityWeights scores 1 for identical phonemes and 0 otherwise.
var IdentityWeights Weights = WeightsFunc(func(a, b Index) float64 {
	if a == b {
		return 1
	}
	return 0
})

// PairWeights is a sparse, symmetric confusion table. Identical phonemes
// always score 1; pairs missing from the table score 0.
type PairWeights map[[2]Index]float64

// Set records the confusion weight between a and b in both directions.
func (p PairWeights) Set(a, b Index, w float64) {
	p[pairKey(a, b)] = w
}

// Score implements [Weights].
func (p PairWeights) Score(a, b Index) float64 {
	if a == b {
		return 1
	}
	return p[pairKey(a, b)]
}

func pairKey(a, b Index) [2]Index {
	if a > b {
		a, b = b, a
	}
	return [2]Index{a, b}
}

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithWeights replaces the per-phoneme confusion table. Default:
// [IdentityWeights].
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if w != nil {
			s.weights = w
		}
	}
}

// WithThreshold sets the score a phoneme pair must exceed to count as a
// match. Default: 0.99.
func WithThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.threshold = threshold
	}
}

// Scorer compares phoneme runs. It is read-only after construction and safe
// for concurrent use.
type Scorer struct {
	weights   Weights
	threshold float64
}

// NewScorer returns a [Scorer] configured with the supplied options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights:   IdentityWeights,
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Threshold returns the configured acceptance threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Exact returns the product of the pairwise confusion weights of a and b, or
// 0 when they differ in length. With [IdentityWeights] this is 1 for equal
// runs and 0 otherwise.
func (s *Scorer) Exact(a, b Word) float64 {
	if len(a) != len(b) {
		return 0
	}
	score := 1.0
	for i := range a {
		score *= s.weights.Score(a[i], b[i])
	}
	return score
}

// Budgeted matches ref against a prefix of cand, spending budget on every
// phoneme that does not match. It returns the budget left (0 when the match
// failed) and how many phonemes of cand were consumed.
//
// Mismatches are classified with a single phoneme of lookahead: an extra
// phoneme in cand, a phoneme missing from cand, or a substitution. Each costs
// 1. A mismatch met with 1 or less left fails the match. When cand runs out
// first, every unmatched phoneme of ref costs 1.
func (s *Scorer) Budgeted(ref, cand Word, budget float64) (float64, int) {
	score := budget
	i, j := 0, 0
	for i < len(ref) {
		if j >= len(cand) {
			return max(0, score-float64(len(ref)-i)*errorCost), j
		}
		if s.match(ref[i], cand[j]) {
			i++
			j++
			continue
		}
		if score <= errorCost {
			return 0, j
		}
		switch {
		case j+1 < len(cand) && s.match(ref[i], cand[j+1]):
			j++
		case i+1 < len(ref) && s.match(ref[i+1], cand[j]):
			i++
		}
		score -= errorCost
		i++
		j++
	}
	return score, j
}

func (s *Scorer) match(a, b Index) bool {
	return s.weights.Score(a, b) > s.threshold
}

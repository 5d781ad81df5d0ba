package phoneme_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

const insanity = "insanity is doing the same thing over and over again"

func TestAlphabet_DefaultIsSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	if a.Len() != 328 {
		t.Fatalf("Len() = %d, want 328", a.Len())
	}
	for i := 1; i < a.Len(); i++ {
		if a.Symbol(phoneme.Index(i-1)) >= a.Symbol(phoneme.Index(i)) {
			t.Fatalf("symbols %d and %d are not strictly ascending", i-1, i)
		}
	}
}

func TestAlphabet_Lookup(t *testing.T) {
	t.Parallel()

	a := phoneme.NewAlphabet("ʁbaab")
	if a.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 after dedup", a.Len())
	}

	tests := []struct {
		r     rune
		want  phoneme.Index
		found bool
	}{
		{'a', 0, true},
		{'b', 1, true},
		{'ʁ', 2, true},
		{'c', 0, false},
		{'̃', 0, false},
	}
	for _, tc := range tests {
		got, ok := a.Lookup(tc.r)
		if ok != tc.found || got != tc.want {
			t.Errorf("Lookup(%q) = (%d, %v), want (%d, %v)", tc.r, got, ok, tc.want, tc.found)
		}
	}
}

func TestAlphabet_EncodeDropsUnknownSymbols(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()

	// Nasalisation tilde, length mark, stress mark, spaces and digits are
	// not in the chart.
	got := a.Encode("ˈʁɑ̃ː 42 do")
	if want := "ʁɑdo"; a.Decode(got) != want {
		t.Errorf("Decode(Encode(...)) = %q, want %q", a.Decode(got), want)
	}
	if len(a.Encode("")) != 0 {
		t.Error("Encode(\"\") should be empty")
	}
}

func TestAlphabet_EncodeWordsKeepsBoundaries(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	seq := a.EncodeWords([]string{"ʁi", "50", "do"})
	if len(seq) != 3 {
		t.Fatalf("len(seq) = %d, want 3", len(seq))
	}
	if len(seq[1]) != 0 {
		t.Errorf("word of unknown symbols encoded to %v, want empty", seq[1])
	}
	if seq.Len() != 4 {
		t.Errorf("seq.Len() = %d, want 4", seq.Len())
	}
	if got := a.Decode(seq.Flatten()); got != "ʁido" {
		t.Errorf("Flatten = %q, want %q", got, "ʁido")
	}
}

func TestScorer_ExactSameSequence(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	for _, text := range []string{insanity, "uvʁe le ʁido", "a", ""} {
		if got := s.Exact(a.Encode(text), a.Encode(text)); got != 1.0 {
			t.Errorf("Exact(%q, same) = %v, want 1", text, got)
		}
	}
}

func TestScorer_ExactDifferentLength(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	tests := [][2]string{
		{insanity, "insanity is doing the same thing ver and over again"},
		{"abc", "abcd"},
		{"", "a"},
	}
	for _, tc := range tests {
		if got := s.Exact(a.Encode(tc[0]), a.Encode(tc[1])); got != 0 {
			t.Errorf("Exact(%q, %q) = %v, want 0", tc[0], tc[1], got)
		}
	}
}

func TestScorer_ExactSubstitutionIsZero(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	got := s.Exact(a.Encode(insanity), a.Encode("insanity is doing the same thing uver and over again"))
	if got != 0 {
		t.Errorf("Exact with one substitution = %v, want 0", got)
	}
}

func TestScorer_BudgetedSelfReturnsBudget(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()
	ref := a.Encode(insanity)

	for _, budget := range []float64{0.5, 1, 2, 7.25} {
		score, consumed := s.Budgeted(ref, ref, budget)
		if score != budget {
			t.Errorf("Budgeted(self, %v) score = %v, want %v", budget, score, budget)
		}
		if consumed != len(ref) {
			t.Errorf("Budgeted(self, %v) consumed = %d, want %d", budget, consumed, len(ref))
		}
	}
}

func TestScorer_BudgetedSingleErrors(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()
	ref := a.Encode(insanity)

	tests := []struct {
		name string
		cand string
	}{
		{"substitution", "insanity is doing the same thing uver and over again"},
		{"deletion", "insanity is doing the same thing ver and over again"},
		{"insertion", "insanity is doing the same thing oover and over again"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cand := a.Encode(tc.cand)
			score, consumed := s.Budgeted(ref, cand, 2.0)
			if score != 1.0 {
				t.Errorf("score = %v, want 1", score)
			}
			if consumed != len(cand) {
				t.Errorf("consumed = %d, want %d", consumed, len(cand))
			}
		})
	}
}

func TestScorer_BudgetedErrorNeedsMoreThanOne(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	score, _ := s.Budgeted(a.Encode("over"), a.Encode("uver"), 1.0)
	if score != 0 {
		t.Errorf("substitution with budget 1 = %v, want 0", score)
	}
	score, _ = s.Budgeted(a.Encode("over"), a.Encode("uvar"), 2.0)
	if score != 0 {
		t.Errorf("two substitutions with budget 2 = %v, want 0", score)
	}
}

func TestScorer_BudgetedPrefixReportsConsumed(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	score, consumed := s.Budgeted(a.Encode("le"), a.Encode("leʁido"), 1.0)
	if score != 1.0 || consumed != 2 {
		t.Errorf("Budgeted(le, leʁido) = (%v, %d), want (1, 2)", score, consumed)
	}
}

func TestScorer_BudgetedCandidateExhausted(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewScorer()

	tests := []struct {
		ref, cand string
		budget    float64
		want      float64
	}{
		{"pursɑ", "pur", 5, 3},
		{"pursɑ", "pur", 1.5, 0},
		{"ab", "", 3, 1},
	}
	for _, tc := range tests {
		got, _ := s.Budgeted(a.Encode(tc.ref), a.Encode(tc.cand), tc.budget)
		if got != tc.want {
			t.Errorf("Budgeted(%q, %q, %v) = %v, want %v", tc.ref, tc.cand, tc.budget, got, tc.want)
		}
	}
}

func TestScorer_PairWeightsForgiveCloseVowels(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	e, _ := a.Lookup('e')
	eps, _ := a.Lookup('ɛ')

	w := phoneme.PairWeights{}
	w.Set(eps, e, 0.995)
	s := phoneme.NewScorer(phoneme.WithWeights(w))

	if got := s.Exact(a.Encode("vɔlɛ"), a.Encode("vɔle")); got != 0.995 {
		t.Errorf("Exact with confusable vowel = %v, want 0.995", got)
	}
	if got, _ := s.Budgeted(a.Encode("vɔlɛ"), a.Encode("vɔle"), 1.0); got != 1.0 {
		t.Errorf("Budgeted with confusable vowel = %v, want 1 (no cost)", got)
	}

	strict := phoneme.NewScorer(phoneme.WithWeights(w), phoneme.WithThreshold(0.999))
	if got, _ := strict.Budgeted(a.Encode("vɔlɛ"), a.Encode("vɔle"), 1.0); got != 0 {
		t.Errorf("Budgeted above threshold 0.999 = %v, want 0", got)
	}
}

func TestStream_Advance(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	seq := a.EncodeWords([]string{"uvʁe", "le", "ʁi", "do"})

	s := phoneme.NewStream(seq)
	s.Advance(4, false)
	if s.Words() != 3 || s.Position() != 1 {
		t.Fatalf("after 4: Words()=%d Position()=%d, want 3 and 1", s.Words(), s.Position())
	}

	partial := s
	partial.Advance(1, false)
	if got := a.Decode(partial.Phonemes()); got != "eʁido" {
		t.Errorf("partial Phonemes() = %q, want %q", got, "eʁido")
	}
	if partial.Words() != 3 {
		t.Errorf("partial Words() = %d, want 3", partial.Words())
	}

	bounded := s
	bounded.Advance(1, true)
	if got := a.Decode(bounded.Phonemes()); got != "ʁido" {
		t.Errorf("word-bounded Phonemes() = %q, want %q", got, "ʁido")
	}

	// The original cursor is untouched by advancing its copies.
	if got := a.Decode(s.Phonemes()); got != "leʁido" {
		t.Errorf("original Phonemes() = %q, want %q", got, "leʁido")
	}

	s.Advance(100, false)
	if !s.Empty() || s.Words() != 0 || s.Phonemes() != nil {
		t.Errorf("stream should be empty after over-advance")
	}
}

func TestStream_SkipWords(t *testing.T) {
	t.Parallel()

	a := phoneme.DefaultAlphabet()
	s := phoneme.NewStream(a.EncodeWords([]string{"sɛ̃kɑ̃t", "pursɑ̃", "mɛʁsi"}))
	s.Advance(2, false)

	skipped := s.SkipWords(1)
	if diff := cmp.Diff(a.Encode("pursɑmɛʁsi"), skipped.Phonemes()); diff != "" {
		t.Errorf("SkipWords(1) mismatch (-want +got):\n%s", diff)
	}
	if s.Position() != 0 {
		t.Errorf("SkipWords modified the receiver")
	}
	if !s.SkipWords(5).Empty() {
		t.Error("SkipWords past the end should be empty")
	}
}

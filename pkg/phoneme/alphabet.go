// Package phoneme encodes phonetic symbols into compact integer indices and
// scores the similarity of the resulting sequences.
//
// The package has three parts:
//
//   - [Alphabet] maps Unicode phonetic symbols (IPA) to indices in a fixed,
//     sorted chart. Symbols outside the chart (diacritics, length marks,
//     spacing) are dropped on purpose: matching works on base phonemes only.
//   - [Sequence] and [Stream] hold an utterance as words of phoneme indices
//     and let grammar nodes consume it left to right without copying.
//   - [Scorer] compares two phoneme runs either exactly or under an error
//     budget that forgives a bounded number of insertions, deletions and
//     substitutions.
//
// Everything in this package is read-only after construction and safe for
// concurrent use, except [Stream] values which belong to a single match call.
package phoneme

import (
	"slices"
	"sort"
	"strings"
)

// ipaChart lists the phonetic symbols of the Unicode IPA chart, sorted by
// code point, without diacritics or modifiers. The plain Latin letters IPA
// shares with ASCII are included in full.
const ipaChart = "abcdefghijklmnopqrstuvwxyz" +
	"æçðøħŋœȡȴȵȶɐɑɒɓɔɕɖɗɘəɚɛɜɝɞɟɠɡɢɣɤɥɦɧɨɩɪɫɬɭɮɯɰɱɲɳɴɵɶɷɸɹɺɻɼɽɾɿ" +
	"ʀʁʂʃʄʅʆʇʈʉʊʋʌʍʎʏʐʑʒʓʔʕʖʗʘʙʚʛʜʝʞʟʠʡʢʣʤʥʦʧʨʩʪʫʬʭʮʯβθχ" +
	"ᴀᴁᴂᴃᴄᴅᴆᴇᴈᴉᴊᴋᴌᴍᴎᴏᴐᴑᴒᴓᴔᴕᴖᴗᴘᴙᴚᴛᴜᴝᴞᴟᴠᴡᴢᴣᴤᴥᴦᴧᴨᴩᴪᴫᴬᴭᴮᴯᴰᴱᴲᴳᴴᴵᴶᴷᴸᴹᴺᴻᴼᴽᴾᴿ" +
	"ᵀᵁᵂᵃᵄᵅᵆᵇᵈᵉᵊᵋᵌᵍᵎᵏᵐᵑᵒᵓᵔᵕᵖᵗᵘᵙᵚᵛᵜᵝᵞᵟᵠᵡᵢᵣᵤᵥᵦᵧᵨᵩᵪᵫᵬᵭᵮᵯᵰᵱᵲᵳᵴᵵᵶᵷᵸᵹᵺᵻᵼᵽᵾᵿ" +
	"ᶀᶁᶂᶃᶄᶅᶆᶇᶈᶉᶊᶋᶌᶍᶎᶏᶐᶑᶒᶓᶔᶕᶖᶗᶘᶙᶚᶛᶜᶝᶞᶟᶠᶡᶢᶣᶤᶥᶦᶧᶨᶩᶪᶫᶬᶭᶮᶯᶰᶱᶲᶳᶴᶵᶶᶷᶸᶹᶺᶻᶼᶽᶾᶿ"

// Index is the position of a symbol in an [Alphabet].
type Index uint16

// Alphabet is an ordered, deduplicated set of phonetic symbols. Lookups are
// a binary search over the sorted symbols.
type Alphabet struct {
	symbols []rune
}

var defaultAlphabet = NewAlphabet(ipaChart)

// DefaultAlphabet returns the shared IPA alphabet.
func DefaultAlphabet() *Alphabet {
	return defaultAlphabet
}

// NewAlphabet builds an alphabet from every distinct rune in symbols.
func NewAlphabet(symbols string) *Alphabet {
	rs := []rune(symbols)
	slices.Sort(rs)
	return &Alphabet{symbols: slices.Compact(rs)}
}

// Len returns the number of symbols in the alphabet.
func (a *Alphabet) Len() int { return len(a.symbols) }

// Lookup returns the index of r, or false when r is not part of the alphabet.
func (a *Alphabet) Lookup(r rune) (Index, bool) {
	i := sort.Search(len(a.symbols), func(i int) bool { return a.symbols[i] >= r })
	if i < len(a.symbols) && a.symbols[i] == r {
		return Index(i), true
	}
	return 0, false
}

// Symbol returns the rune stored at i. It panics when i is out of range.
func (a *Alphabet) Symbol(i Index) rune { return a.symbols[i] }

// Encode converts s to phoneme indices. Runes that are not in the alphabet
// are skipped silently.
func (a *Alphabet) Encode(s string) Word {
	w := make(Word, 0, len(s))
	for _, r := range s {
		if i, ok := a.Lookup(r); ok {
			w = append(w, i)
		}
	}
	return w
}

// EncodeWords encodes each word separately, preserving word boundaries.
// A word whose symbols are all unknown becomes an empty [Word].
func (a *Alphabet) EncodeWords(words []string) Sequence {
	seq := make(Sequence, len(words))
	for i, w := range words {
		seq[i] = a.Encode(w)
	}
	return seq
}

// Decode renders w back to its phonetic symbols.
func (a *Alphabet) Decode(w Word) string {
	var b strings.Builder
	for _, i := range w {
		b.WriteRune(a.symbols[i])
	}
	return b.String()
}

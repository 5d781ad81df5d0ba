package phoneme

// Word is the phoneme encoding of a single spoken word.
type Word []Index

// Sequence is an utterance as a list of words, each a list of phoneme
// indices. Word boundaries are kept so that a span of phonemes can be mapped
// back to the words of the original text.
type Sequence []Word

// Len returns the total number of phonemes in s.
func (s Sequence) Len() int {
	n := 0
	for _, w := range s {
		n += len(w)
	}
	return n
}

// Flatten concatenates all words of s.
func (s Sequence) Flatten() Word {
	out := make(Word, 0, s.Len())
	for _, w := range s {
		out = append(out, w...)
	}
	return out
}

// Stream is a read cursor over a [Sequence]. Consuming phonemes moves the
// cursor forward; the backing sequence is never modified, so copying a
// Stream value gives an independent cursor that can be advanced without
// affecting the original.
type Stream struct {
	seq  Sequence
	word int // current word
	off  int // phonemes already consumed in seq[word]
}

// NewStream returns a stream positioned at the start of seq.
func NewStream(seq Sequence) Stream {
	return Stream{seq: seq}
}

// Empty reports whether every word has been consumed.
func (s Stream) Empty() bool { return s.word >= len(s.seq) }

// Words returns the number of words not yet fully consumed. A word that has
// been partially consumed still counts.
func (s Stream) Words() int {
	if s.Empty() {
		return 0
	}
	return len(s.seq) - s.word
}

// Position returns the index, in the backing sequence, of the first word not
// yet fully consumed.
func (s Stream) Position() int { return s.word }

// Phonemes returns the remaining phonemes as one flat run.
func (s Stream) Phonemes() Word {
	if s.Empty() {
		return nil
	}
	out := make(Word, 0, s.seq[s.word:].Len()-s.off)
	out = append(out, s.seq[s.word][s.off:]...)
	for _, w := range s.seq[s.word+1:] {
		out = append(out, w...)
	}
	return out
}

// Advance consumes n phonemes. Words consumed completely are dropped. When
// wordBoundaries is set, a word that is only partially consumed is dropped as
// well; otherwise its unconsumed tail stays at the front of the stream.
func (s *Stream) Advance(n int, wordBoundaries bool) {
	for n > 0 && s.word < len(s.seq) {
		rest := len(s.seq[s.word]) - s.off
		if n >= rest {
			n -= rest
			s.word++
			s.off = 0
			continue
		}
		if wordBoundaries {
			s.word++
			s.off = 0
		} else {
			s.off += n
		}
		return
	}
}

// AdvanceWords drops the next n words, including a partially consumed one.
func (s *Stream) AdvanceWords(n int) {
	s.word = min(s.word+n, len(s.seq))
	s.off = 0
}

// SkipWords returns a copy of s positioned n words further on.
func (s Stream) SkipWords(n int) Stream {
	s.AdvanceWords(n)
	return s
}

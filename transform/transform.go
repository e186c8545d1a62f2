// Package transform implements the text operations a wordwire server
// applies to request payloads.
package transform

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/exp/rand"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/stat/distuv"
)

// Odds used by Randomize: one in six runes is dropped, and one in six of
// the kept runes is repeated.
const (
	dropWeight   = 1.0 / 6
	repeatWeight = 1.0 / 6

	// maxRepeat caps a single Pareto draw, whose mean is unbounded.
	maxRepeat = 32
)

// Transformer applies text operations. The random operations draw from a
// single source guarded by a mutex, so a Transformer may be shared between
// connections.
type Transformer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	pareto distuv.Pareto

	upper cases.Caser
	lower cases.Caser
}

// New returns a Transformer whose random operations are seeded with seed.
func New(seed uint64) *Transformer {
	src := rand.NewSource(seed)
	return &Transformer{
		rng:    rand.New(src),
		pareto: distuv.Pareto{Xm: 1, Alpha: 1, Src: src},
		upper:  cases.Upper(language.Und),
		lower:  cases.Lower(language.Und),
	}
}

// Upper returns text in upper case.
func (t *Transformer) Upper(text []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upper.Bytes(text)
}

// Lower returns text in lower case.
func (t *Transformer) Lower(text []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lower.Bytes(text)
}

// Reverse returns text with its characters in reverse order. Invalid UTF-8
// is reversed byte by byte.
func Reverse(text []byte) []byte {
	out := make([]byte, len(text))
	if !utf8.Valid(text) {
		for i, b := range text {
			out[len(text)-1-i] = b
		}
		return out
	}

	end := len(out)
	for len(text) > 0 {
		_, size := utf8.DecodeRune(text)
		copy(out[end-size:end], text[:size])
		end -= size
		text = text[size:]
	}
	return out
}

// Shuffle returns the characters of text in a random order.
func (t *Transformer) Shuffle(text []byte) []byte {
	runes := []rune(string(text))

	t.mu.Lock()
	t.rng.Shuffle(len(runes), func(i, j int) {
		runes[i], runes[j] = runes[j], runes[i]
	})
	t.mu.Unlock()

	return []byte(string(runes))
}

// Randomize drops some characters of text and repeats others. A repeated
// character appears floor(X) times, at most maxRepeat, where X is Pareto
// distributed with minimum 1 and shape 1. If nothing survives, the first
// character of text is returned.
func (t *Transformer) Randomize(text []byte) []byte {
	if len(text) == 0 {
		return []byte{}
	}

	runes := []rune(string(text))
	out := make([]rune, 0, len(runes))

	t.mu.Lock()
	for _, r := range runes {
		if t.rng.Float64() < dropWeight {
			continue
		}
		n := 1
		if t.rng.Float64() < repeatWeight {
			n = int(t.pareto.Rand())
			if n > maxRepeat {
				n = maxRepeat
			}
		}
		for i := 0; i < n; i++ {
			out = append(out, r)
		}
	}
	t.mu.Unlock()

	if len(out) == 0 {
		out = runes[:1]
	}
	return []byte(string(out))
}

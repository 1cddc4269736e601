package sequence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Base is a single nucleotide symbol.
type Base byte

const (
	A       Base = 'A'
	T       Base = 'T'
	G       Base = 'G'
	C       Base = 'C'
	Unknown Base = 'N'
)

// Alphabet lists the known bases in table order. Pitch tables index into this
// order, so A is always index 0 and C index 3.
var Alphabet = [...]Base{A, T, G, C}

// Index returns the position of b in Alphabet, or -1 for the unknown sentinel.
func (b Base) Index() int {
	switch b {
	case A:
		return 0
	case T:
		return 1
	case G:
		return 2
	case C:
		return 3
	}
	return -1
}

func (b Base) Known() bool { return b.Index() >= 0 }

func (b Base) String() string { return string(rune(b)) }

func (b Base) MarshalText() ([]byte, error) { return []byte{byte(b)}, nil }

func (b *Base) UnmarshalText(text []byte) error {
	if len(text) != 1 {
		return fmt.Errorf("base must be a single symbol, got %q", text)
	}
	v, ok := normalize(rune(text[0]), false)
	if !ok {
		return &ValidationError{Position: 0, Symbol: rune(text[0]), Reason: "unsupported symbol"}
	}
	*b = v
	return nil
}

// ErrValidation is matched by every error returned for a rejected sequence.
var ErrValidation = errors.New("invalid sequence")

// ValidationError reports the first offending symbol of a rejected sequence.
// Position is the 0-based index into the raw input, or -1 when the input as a
// whole is unusable (e.g. empty).
type ValidationError struct {
	Position int
	Symbol   rune
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("invalid sequence: %s", e.Reason)
	}
	return fmt.Sprintf("invalid sequence: %s %q at position %d", e.Reason, e.Symbol, e.Position)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Options control how raw text is accepted as a Sequence.
type Options struct {
	ID    string // defaults to a random UUID
	Label string
	// Strict rejects IUPAC ambiguity codes instead of folding them into N.
	Strict bool
}

// Sequence is an immutable, validated list of bases. Its composition
// statistics are computed once at construction.
type Sequence struct {
	id      string
	label   string
	symbols []Base
	stats   Stats
}

// Parse validates raw and returns a Sequence. Whitespace is ignored and
// lowercase letters are accepted.
func Parse(raw string, opts Options) (*Sequence, error) {
	symbols := make([]Base, 0, len(raw))
	for i, r := range raw {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		b, ok := normalize(r, opts.Strict)
		if !ok {
			reason := "unsupported symbol"
			if opts.Strict && isAmbiguity(r) {
				reason = "ambiguity code not allowed"
			}
			return nil, &ValidationError{Position: i, Symbol: r, Reason: reason}
		}
		symbols = append(symbols, b)
	}
	return New(symbols, opts)
}

// New builds a Sequence from already-normalized bases.
func New(symbols []Base, opts Options) (*Sequence, error) {
	if len(symbols) == 0 {
		return nil, &ValidationError{Position: -1, Reason: "sequence is empty"}
	}
	for i, b := range symbols {
		if !b.Known() && b != Unknown {
			return nil, &ValidationError{Position: i, Symbol: rune(b), Reason: "unsupported symbol"}
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &Sequence{
		id:      id,
		label:   opts.Label,
		symbols: append([]Base(nil), symbols...),
	}
	s.stats = computeStats(s.symbols)
	return s, nil
}

func normalize(r rune, strict bool) (Base, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	switch r {
	case 'A', 'T', 'G', 'C', 'N':
		return Base(r), true
	case 'U':
		// RNA input; uracil pairs like thymine.
		return T, true
	}
	if !strict && isAmbiguity(r) {
		return Unknown, true
	}
	return 0, false
}

func isAmbiguity(r rune) bool {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	return strings.ContainsRune("RYSWKMBDHV", r)
}

func (s *Sequence) ID() string    { return s.id }
func (s *Sequence) Label() string { return s.label }
func (s *Sequence) Len() int      { return len(s.symbols) }

// At returns the base at position i.
func (s *Sequence) At(i int) Base { return s.symbols[i] }

// Symbols returns a copy of the bases.
func (s *Sequence) Symbols() []Base { return append([]Base(nil), s.symbols...) }

// Stats returns the cached composition statistics.
func (s *Sequence) Stats() Stats { return s.stats }

func (s *Sequence) String() string {
	var b strings.Builder
	b.Grow(len(s.symbols))
	for _, sym := range s.symbols {
		b.WriteByte(byte(sym))
	}
	return b.String()
}

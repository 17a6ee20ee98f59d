package internal

import (
	"errors"
	"fmt"
	"strings"
)

// Symbol sets used by the webmail tokens. The reduced set is the one observed
// in captured web UI links and must not be reordered.
const (
	fullSymbols    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	reducedSymbols = "BCDFGHJKLMNPQRSTVWXZbcdfghjklmnpqrstvwxz"
)

var (
	FullAlphabet    = MustAlphabet(fullSymbols)
	ReducedAlphabet = MustAlphabet(reducedSymbols)
)

var (
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrInvalidAlphabet = errors.New("invalid alphabet")
)

// InvalidSymbolError reports a token character that is not part of the
// alphabet it is decoded with.
type InvalidSymbolError struct {
	Symbol   byte
	Position int
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("%s %q at position %d", ErrInvalidSymbol, e.Symbol, e.Position)
}

func (e *InvalidSymbolError) Is(target error) bool {
	return target == ErrInvalidSymbol
}

// Alphabet is an ordered set of single-byte symbols. A symbol's index is its
// digit value and the number of symbols is the radix.
type Alphabet struct {
	symbols string
	index   [256]int16
}

func NewAlphabet(symbols string) (Alphabet, error) {
	if len(symbols) < 2 {
		return Alphabet{}, fmt.Errorf("%w: need at least 2 symbols, got %d", ErrInvalidAlphabet, len(symbols))
	}
	a := Alphabet{symbols: symbols}
	for i := range a.index {
		a.index[i] = -1
	}
	for i := 0; i < len(symbols); i++ {
		c := symbols[i]
		if c >= 0x80 {
			return Alphabet{}, fmt.Errorf("%w: non-ASCII symbol at position %d", ErrInvalidAlphabet, i)
		}
		if a.index[c] >= 0 {
			return Alphabet{}, fmt.Errorf("%w: symbol %q repeats at position %d", ErrInvalidAlphabet, c, i)
		}
		a.index[c] = int16(i)
	}
	return a, nil
}

func MustAlphabet(symbols string) Alphabet {
	a, err := NewAlphabet(symbols)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Alphabet) Radix() int {
	return len(a.symbols)
}

func (a Alphabet) String() string {
	return a.symbols
}

// Digit returns the value of c, or -1 when c is not in the alphabet.
func (a Alphabet) Digit(c byte) int {
	return int(a.index[c])
}

func (a Alphabet) Contains(s string) bool {
	for i := 0; i < len(s); i++ {
		if a.index[s[i]] < 0 {
			return false
		}
	}
	return true
}

// Transcode reads token as a most-significant-first number written with the
// symbols of from and writes the same value with the symbols of to.
//
// The value is kept as a slice of target-base digits, least significant
// first, so tokens of any length convert without overflow. An empty token
// yields an empty result and a zero value yields a single zero symbol.
func Transcode(token string, from, to Alphabet) (string, error) {
	if token == "" {
		return "", nil
	}
	if from.Radix() == 0 || to.Radix() == 0 {
		return "", ErrInvalidAlphabet
	}

	srcBase := from.Radix()
	dstBase := to.Radix()

	acc := make([]int, 0, len(token))
	for pos := 0; pos < len(token); pos++ {
		digit := from.Digit(token[pos])
		if digit < 0 {
			return "", &InvalidSymbolError{Symbol: token[pos], Position: pos}
		}

		// acc = acc*srcBase + digit
		carry := digit
		for i := range acc {
			v := acc[i]*srcBase + carry
			acc[i] = v % dstBase
			carry = v / dstBase
		}
		for carry > 0 {
			acc = append(acc, carry%dstBase)
			carry /= dstBase
		}
	}

	if len(acc) == 0 {
		return string(to.symbols[0]), nil
	}

	var out strings.Builder
	out.Grow(len(acc))
	for i := len(acc) - 1; i >= 0; i-- {
		out.WriteByte(to.symbols[acc[i]])
	}
	return out.String(), nil
}

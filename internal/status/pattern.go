// Package status parses and evaluates response status match patterns.
//
// A Pattern is one of five variants: Exact, Class, Range, Not and AnyOf.
// Every consumer switches on Pattern.Kind exhaustively; the specificity
// weight of a pattern feeds profile tie-breaking.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Bounds of valid HTTP status codes.
const (
	MinCode = 100
	MaxCode = 599
)

// ErrInvalidPattern is returned for unparseable or out-of-range patterns.
var ErrInvalidPattern = errors.New("invalid status pattern")

// Kind identifies the variant of a Pattern.
type Kind int

// Pattern variants.
const (
	KindExact Kind = iota + 1
	KindClass
	KindRange
	KindNot
	KindAnyOf
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindClass:
		return "class"
	case KindRange:
		return "range"
	case KindNot:
		return "not"
	case KindAnyOf:
		return "anyOf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Pattern is an immutable status match expression. Only the fields of the
// active Kind are set; construct patterns with Exact, Class, Range, Not and
// AnyOf.
type Pattern struct {
	kind  Kind
	code  int // exact
	digit int // class
	low   int // range
	high  int // range
	inner *Pattern
	any   []Pattern
}

// Exact matches a single code.
func Exact(code int) (Pattern, error) {
	if err := checkCode(code); err != nil {
		return Pattern{}, err
	}
	return Pattern{kind: KindExact, code: code}, nil
}

// Class matches every code whose leading digit is digit (1..5).
func Class(digit int) (Pattern, error) {
	if digit < 1 || digit > 5 {
		return Pattern{}, fmt.Errorf("%w: class digit %d out of range 1-5", ErrInvalidPattern, digit)
	}
	return Pattern{kind: KindClass, digit: digit}, nil
}

// Range matches low..high inclusive.
func Range(low, high int) (Pattern, error) {
	if err := checkCode(low); err != nil {
		return Pattern{}, err
	}
	if err := checkCode(high); err != nil {
		return Pattern{}, err
	}
	if low > high {
		return Pattern{}, fmt.Errorf("%w: range %d-%d has low greater than high", ErrInvalidPattern, low, high)
	}
	return Pattern{kind: KindRange, low: low, high: high}, nil
}

// Not negates inner.
func Not(inner Pattern) Pattern {
	in := inner
	return Pattern{kind: KindNot, inner: &in}
}

// AnyOf matches when any of the patterns match. It needs at least one.
func AnyOf(patterns ...Pattern) (Pattern, error) {
	if len(patterns) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty list", ErrInvalidPattern)
	}
	return Pattern{kind: KindAnyOf, any: append([]Pattern(nil), patterns...)}, nil
}

// MustExact is Exact that panics on error. Intended for tests and constants.
func MustExact(code int) Pattern {
	p, err := Exact(code)
	if err != nil {
		panic(err)
	}
	return p
}

// MustClass is Class that panics on error.
func MustClass(digit int) Pattern {
	p, err := Class(digit)
	if err != nil {
		panic(err)
	}
	return p
}

func checkCode(code int) error {
	if code < MinCode || code > MaxCode {
		return fmt.Errorf("%w: status code %d out of range %d-%d", ErrInvalidPattern, code, MinCode, MaxCode)
	}
	return nil
}

// Kind returns the variant.
func (p Pattern) Kind() Kind { return p.kind }

// IsZero reports whether p is the zero value (no pattern).
func (p Pattern) IsZero() bool { return p.kind == 0 }

// Matches reports whether code satisfies the pattern.
func (p Pattern) Matches(code int) bool {
	switch p.kind {
	case KindExact:
		return code == p.code
	case KindClass:
		return code/100 == p.digit
	case KindRange:
		return code >= p.low && code <= p.high
	case KindNot:
		return !p.inner.Matches(code)
	case KindAnyOf:
		for _, sub := range p.any {
			if sub.Matches(code) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Weight is the specificity contribution of the pattern to profile
// tie-breaking.
func (p Pattern) Weight() int {
	switch p.kind {
	case KindExact, KindRange:
		return 2
	case KindClass, KindNot:
		return 1
	case KindAnyOf:
		w := 1
		for _, sub := range p.any {
			if sw := sub.Weight(); sw > w {
				w = sw
			}
		}
		return w
	default:
		return 0
	}
}

// Equal reports structural equality.
func (p Pattern) Equal(other Pattern) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case KindExact:
		return p.code == other.code
	case KindClass:
		return p.digit == other.digit
	case KindRange:
		return p.low == other.low && p.high == other.high
	case KindNot:
		return p.inner.Equal(*other.inner)
	case KindAnyOf:
		if len(p.any) != len(other.any) {
			return false
		}
		for i := range p.any {
			if !p.any[i].Equal(other.any[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the pattern in its source grammar.
func (p Pattern) String() string {
	switch p.kind {
	case KindExact:
		return fmt.Sprintf("%d", p.code)
	case KindClass:
		return fmt.Sprintf("%dxx", p.digit)
	case KindRange:
		return fmt.Sprintf("%d-%d", p.low, p.high)
	case KindNot:
		return "!" + p.inner.String()
	case KindAnyOf:
		parts := make([]string, len(p.any))
		for i, sub := range p.any {
			parts[i] = sub.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

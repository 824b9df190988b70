package status

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	rangePattern = regexp.MustCompile(`^(\d{3})-(\d{3})$`)
	classPattern = regexp.MustCompile(`^([1-5])[xX][xX]$`)
	exactPattern = regexp.MustCompile(`^\d{3}$`)
)

// Parse converts a decoded YAML/JSON literal into a Pattern. Accepted forms
// are an integer, a string in the pattern grammar, or a list of either.
func Parse(v any) (Pattern, error) {
	switch val := v.(type) {
	case int:
		return Exact(val)
	case int64:
		return Exact(int(val))
	case uint64:
		return Exact(int(val))
	case float64:
		if val != float64(int(val)) {
			return Pattern{}, fmt.Errorf("%w: %v is not an integer", ErrInvalidPattern, val)
		}
		return Exact(int(val))
	case string:
		return ParseString(val)
	case []any:
		return parseList(val)
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return parseList(items)
	case nil:
		return Pattern{}, fmt.Errorf("%w: null", ErrInvalidPattern)
	default:
		return Pattern{}, fmt.Errorf("%w: unsupported literal of type %T", ErrInvalidPattern, v)
	}
}

func parseList(items []any) (Pattern, error) {
	switch len(items) {
	case 0:
		return Pattern{}, fmt.Errorf("%w: empty list", ErrInvalidPattern)
	case 1:
		return Parse(items[0])
	}
	patterns := make([]Pattern, 0, len(items))
	for _, item := range items {
		p, err := Parse(item)
		if err != nil {
			return Pattern{}, err
		}
		patterns = append(patterns, p)
	}
	return AnyOf(patterns...)
}

// ParseString parses the string grammar: "!inner", "ddd-ddd", "Nxx" or "ddd".
func ParseString(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Pattern{}, fmt.Errorf("%w: empty string", ErrInvalidPattern)
	}

	if rest, ok := strings.CutPrefix(s, "!"); ok {
		inner, err := ParseString(rest)
		if err != nil {
			return Pattern{}, err
		}
		return Not(inner), nil
	}

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		low, _ := strconv.Atoi(m[1])
		high, _ := strconv.Atoi(m[2])
		return Range(low, high)
	}

	if m := classPattern.FindStringSubmatch(s); m != nil {
		digit, _ := strconv.Atoi(m[1])
		return Class(digit)
	}

	if exactPattern.MatchString(s) {
		code, _ := strconv.Atoi(s)
		return Exact(code)
	}

	return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, s)
}

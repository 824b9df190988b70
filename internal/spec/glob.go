package spec

import (
	"regexp"
	"strings"
)

// Glob is a name pattern where * matches any run of characters and every
// other character is literal.
type Glob struct {
	pattern string
	re      *regexp.Regexp
}

// NewGlob compiles a glob pattern.
func NewGlob(pattern string) Glob {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	return Glob{
		pattern: pattern,
		re:      regexp.MustCompile("^" + quoted + "$"),
	}
}

// Match reports whether name matches the whole pattern.
func (g Glob) Match(name string) bool {
	if g.re == nil {
		return false
	}
	return g.re.MatchString(name)
}

// String returns the source pattern.
func (g Glob) String() string { return g.pattern }

package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSensitivePath(t *testing.T) {
	t.Parallel()

	valid := []string{"$", "$.a", "$.a.b_c", "$.items[*].token", "$.items[0]", "$.m[*][1].x"}
	for _, p := range valid {
		_, err := ParseSensitivePath(p)
		assert.NoError(t, err, p)
	}

	invalid := []string{"", " ", "a.b", "$a", "$.1a", "$.a-b", "$..a", "$.a['b']"}
	for _, p := range invalid {
		_, err := ParseSensitivePath(p)
		assert.Error(t, err, p)
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	mustPaths := func(raw ...string) []SensitivePath {
		out := make([]SensitivePath, 0, len(raw))
		for _, r := range raw {
			p, err := ParseSensitivePath(r)
			require.NoError(t, err)
			out = append(out, p)
		}
		return out
	}

	doc := map[string]any{
		"user":     "bob",
		"password": "hunter2",
		"cards": []any{
			map[string]any{"number": "4111", "exp": "12/30"},
			map[string]any{"number": "5500", "exp": "01/31"},
		},
		"tokens": []any{"a", "b"},
	}

	got := Redact(doc, mustPaths("$.password", "$.cards[*].number", "$.tokens[1]", "$.missing.deep"))
	assert.Equal(t, map[string]any{
		"user":     "bob",
		"password": RedactedValue,
		"cards": []any{
			map[string]any{"number": RedactedValue, "exp": "12/30"},
			map[string]any{"number": RedactedValue, "exp": "01/31"},
		},
		"tokens": []any{"a", RedactedValue},
	}, got)

	assert.Equal(t, "hunter2", doc["password"], "input must not be modified")
	assert.Equal(t, RedactedValue, Redact(doc, mustPaths("$")))
	assert.Equal(t, doc, Redact(doc, nil))
}

func TestGlob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"x-internal-*", "x-internal-id", true},
		{"x-internal-*", "x-internal-", true},
		{"x-internal-*", "y-internal-id", false},
		{"server", "server", true},
		{"server", "servers", false},
		{"a.b", "axb", false},
		{"*", "anything", true},
		{"debug*", "debugLevel", true},
		{"(x)", "(x)", true},
	}
	for _, tt := range tests {
		g := NewGlob(tt.pattern)
		assert.Equal(t, tt.want, g.Match(tt.name), "%s ~ %s", tt.pattern, tt.name)
		assert.Equal(t, tt.pattern, g.String())
	}
	assert.False(t, Glob{}.Match("x"))
}

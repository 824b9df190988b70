package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse_ExactEncodingsAreEquivalent(t *testing.T) {
	t.Parallel()

	want := MustExact(404)

	tests := []struct {
		name  string
		input any
	}{
		{name: "string", input: "404"},
		{name: "int", input: 404},
		{name: "float from JSON", input: float64(404)},
		{name: "single element list", input: []any{"404"}},
		{name: "single int list", input: []any{404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, KindExact, got.Kind())
		})
	}
}

func TestParse_FromYAML(t *testing.T) {
	t.Parallel()

	docs := []string{`status: "404"`, `status: 404`, `status: ["404"]`}
	for _, doc := range docs {
		var v struct {
			Status any `yaml:"status"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(doc), &v))
		got, err := Parse(v.Status)
		require.NoError(t, err, doc)
		assert.True(t, MustExact(404).Equal(got), doc)
	}
}

func TestPattern_Matches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		match   []int
		noMatch []int
	}{
		{pattern: "4xx", match: []int{400, 404, 499}, noMatch: []int{399, 500}},
		{pattern: "5XX", match: []int{500, 599}, noMatch: []int{499}},
		{pattern: "400-499", match: []int{400, 450, 499}, noMatch: []int{399, 500}},
		{pattern: "!404", match: []int{200, 403, 405, 500}, noMatch: []int{404}},
		{pattern: "!4xx", match: []int{200, 500}, noMatch: []int{400, 418}},
		{pattern: "200", match: []int{200}, noMatch: []int{201}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			t.Parallel()
			p, err := ParseString(tt.pattern)
			require.NoError(t, err)
			for _, code := range tt.match {
				assert.True(t, p.Matches(code), "%s should match %d", tt.pattern, code)
			}
			for _, code := range tt.noMatch {
				assert.False(t, p.Matches(code), "%s should not match %d", tt.pattern, code)
			}
		})
	}
}

func TestAnyOf_ClassAndExact(t *testing.T) {
	t.Parallel()

	p, err := AnyOf(MustClass(2), MustExact(404))
	require.NoError(t, err)

	for _, code := range []int{200, 204, 404} {
		assert.True(t, p.Matches(code), code)
	}
	assert.False(t, p.Matches(500))

	parsed, err := Parse([]any{"2xx", 404})
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed))
	assert.Equal(t, "[2xx, 404]", parsed.String())
}

func TestPattern_Weight(t *testing.T) {
	t.Parallel()

	anyClasses, err := AnyOf(MustClass(2), MustClass(3))
	require.NoError(t, err)
	anyMixed, err := AnyOf(MustClass(2), MustExact(404))
	require.NoError(t, err)
	rng, err := Range(400, 404)
	require.NoError(t, err)

	tests := []struct {
		name    string
		pattern Pattern
		want    int
	}{
		{name: "exact", pattern: MustExact(200), want: 2},
		{name: "range", pattern: rng, want: 2},
		{name: "class", pattern: MustClass(4), want: 1},
		{name: "not", pattern: Not(MustExact(404)), want: 1},
		{name: "anyOf classes", pattern: anyClasses, want: 1},
		{name: "anyOf with exact", pattern: anyMixed, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.pattern.Weight())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
	}{
		{name: "below range", input: 99},
		{name: "above range", input: 600},
		{name: "string above range", input: "600"},
		{name: "class zero", input: "0xx"},
		{name: "class six", input: "6xx"},
		{name: "inverted range", input: "499-400"},
		{name: "range out of bounds", input: "500-700"},
		{name: "garbage", input: "abc"},
		{name: "empty string", input: ""},
		{name: "empty list", input: []any{}},
		{name: "bad element", input: []any{"200", "nope"}},
		{name: "fractional", input: 404.5},
		{name: "null", input: nil},
		{name: "bool", input: true},
		{name: "negated garbage", input: "!x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestPattern_StringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"404", "4xx", "400-499", "!404", "!!2xx"} {
		p, err := ParseString(src)
		require.NoError(t, err)
		again, err := ParseString(p.String())
		require.NoError(t, err)
		assert.True(t, p.Equal(again), src)
	}
}

func TestPattern_ZeroValue(t *testing.T) {
	t.Parallel()

	var p Pattern
	assert.True(t, p.IsZero())
	assert.False(t, p.Matches(200))
	assert.Equal(t, 0, p.Weight())
}

package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/msgxform/internal/expr/builtin"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/status"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

func testSpecs(t *testing.T) Specs {
	t.Helper()

	sc := spec.NewCompiler(builtin.MustNewRegistry())
	specs := Specs{}
	for _, doc := range []struct{ id, version string }{
		{"orders", "1.0.0"},
		{"orders", "1.10.0"},
		{"orders", "1.9.3"},
		{"errors", "1"},
	} {
		s, err := sc.Compile([]byte("id: "+doc.id+"\nversion: '"+doc.version+"'\ntransform:\n  expr: input\n"), doc.id+".yaml")
		require.NoError(t, err)
		specs[s.Key()] = s
	}
	return specs
}

func compileProfile(t *testing.T, doc string) (*Profile, error) {
	t.Helper()
	return NewCompiler(builtin.MustNewRegistry()).Compile([]byte(doc), "profile.yaml", testSpecs(t))
}

func TestCompiler_ResolvesSpecs(t *testing.T) {
	t.Parallel()

	p, err := compileProfile(t, `
profile: shop
version: "1"
description: storefront
transforms:
  - spec: orders@1.0.0
    direction: request
    match:
      path: /orders
  - spec: orders
    direction: Response
    match:
      path: /orders/*
      method: post
      content-type: application/json
      status: 4xx
`)
	require.NoError(t, err)

	assert.Equal(t, "shop", p.ID)
	assert.Equal(t, "1", p.Version)
	assert.Equal(t, "storefront", p.Description)
	require.Len(t, p.Entries, 2)

	first, second := p.Entries[0], p.Entries[1]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "1.0.0", first.Spec.Version)
	assert.Equal(t, message.Request, first.Direction)

	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "1.10.0", second.Spec.Version, "bare id resolves to the highest version")
	assert.Equal(t, message.Response, second.Direction)
	assert.Equal(t, "POST", second.Method)
	assert.Equal(t, message.MediaType("application/json"), second.ContentType)
	assert.True(t, second.Status.Equal(status.MustClass(4)))
	assert.False(t, p.HasWhen())
}

func TestCompiler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{name: "invalid yaml", doc: "profile: ["},
		{name: "empty", doc: ""},
		{name: "missing id", doc: "version: '1'\ntransforms: []\n", contains: "'profile'"},
		{name: "missing version", doc: "profile: p\ntransforms: []\n", contains: "'version'"},
		{name: "empty transforms", doc: "profile: p\nversion: '1'\ntransforms: []\n", contains: "non-empty"},
		{name: "unknown root key", doc: "profile: p\nversion: '1'\nentries: []\ntransforms: [{spec: errors, direction: request, match: {path: /}}]\n", contains: "entries"},
		{name: "unresolved spec", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: nope\n    direction: request\n    match: {path: /}\n", contains: `"nope"`},
		{name: "unresolved version", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: orders@9\n    direction: request\n    match: {path: /}\n", contains: "entry[0]"},
		{name: "bad direction", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: both\n    match: {path: /}\n", contains: "both"},
		{name: "missing match", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n", contains: "'match'"},
		{name: "missing path", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {method: GET}\n", contains: "'path'"},
		{name: "status on request", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {path: /, status: 404}\n", contains: "response"},
		{name: "bad status", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: response\n    match: {path: /, status: 6xx}\n", contains: "6xx"},
		{name: "bad when", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {path: /, when: 'input.'}\n", contains: "match.when"},
		{name: "unknown match key", doc: "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {path: /, host: x}\n", contains: "host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := compileProfile(t, tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, xformerr.ErrProfileResolve)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestCompiler_StatusAbsentOnRequestAccepted(t *testing.T) {
	t.Parallel()

	p, err := compileProfile(t, "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {path: /a}\n")
	require.NoError(t, err)
	assert.True(t, p.Entries[0].Status.IsZero())
}

func TestCompiler_StatusEncodings(t *testing.T) {
	t.Parallel()

	for _, literal := range []string{`"404"`, `404`, `["404"]`} {
		p, err := compileProfile(t, "profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: response\n    match:\n      path: /a\n      status: "+literal+"\n")
		require.NoError(t, err, literal)
		assert.True(t, p.Entries[0].Status.Equal(status.MustExact(404)), literal)
	}
}

func TestCompiler_CompileFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: p\nversion: '1'\ntransforms:\n  - spec: errors\n    direction: request\n    match: {path: /a}\n"), 0o600))

	c := NewCompiler(builtin.MustNewRegistry())
	p, err := c.CompileFile(path, testSpecs(t))
	require.NoError(t, err)
	assert.Equal(t, path, p.Source)

	_, err = c.CompileFile(path+".missing", testSpecs(t))
	assert.ErrorIs(t, err, xformerr.ErrProfileResolve)
}

func TestEntry_MatchPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/json/alpha/authenticate", "/json/alpha/authenticate", true},
		{"/json/*/authenticate", "/json/alpha/authenticate", true},
		{"/json/*/authenticate", "/json/authenticate", false},
		{"/json/*/authenticate", "/json/a/b/authenticate", false},
		{"/json/**", "/json", true},
		{"/json/**", "/json/a/b/c", true},
		{"/json/**/end", "/json/end", true},
		{"/json/**/end", "/json/a/b/end", true},
		{"/json/**/end", "/json/a/b/other", false},
		{"/", "/", true},
		{"/**", "/anything/at/all", true},
		{"/a", "/b", false},
	}
	for _, tt := range tests {
		e := &Entry{PathPattern: tt.pattern, segments: splitPath(tt.pattern)}
		assert.Equal(t, tt.want, e.MatchPath(tt.path), "%s ~ %s", tt.pattern, tt.path)
	}
}

func TestEntry_SpecificityAndConstraints(t *testing.T) {
	t.Parallel()

	literal := &Entry{segments: splitPath("/json/alpha/authenticate")}
	wildcard := &Entry{segments: splitPath("/json/*/authenticate")}
	deep := &Entry{segments: splitPath("/json/**")}
	assert.Equal(t, 3, literal.Specificity())
	assert.Equal(t, 2, wildcard.Specificity())
	assert.Equal(t, 1, deep.Specificity())

	constrained := &Entry{Method: "POST", ContentType: "application/json", Status: status.MustExact(404)}
	assert.Equal(t, 4, constrained.ConstraintCount())
	assert.Equal(t, 0, (&Entry{}).ConstraintCount())
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, CompareVersions("1.2", "1.2.0"))
	assert.Equal(t, 1, CompareVersions("1.10.0", "1.9.3"))
	assert.Equal(t, -1, CompareVersions("1", "1.0.1"))
	assert.Equal(t, 0, CompareVersions("1.beta", "1.0"))
	assert.Equal(t, 1, CompareVersions("2", "1.99"))
}

func TestMatcher_Best(t *testing.T) {
	t.Parallel()

	p, err := compileProfile(t, `
profile: m
version: "1"
transforms:
  - spec: orders@1.0.0
    direction: request
    match:
      path: /json/*/authenticate
  - spec: orders@1.9.3
    direction: request
    match:
      path: /json/alpha/authenticate
  - spec: errors
    direction: request
    match:
      path: /json/beta/authenticate
      method: POST
  - spec: orders@1.10.0
    direction: request
    match:
      path: /json/beta/authenticate
  - spec: errors
    direction: response
    match:
      path: /json/**
      status: 5xx
  - spec: orders@1.0.0
    direction: response
    match:
      path: /json/**
      status: 503
  - spec: orders@1.9.3
    direction: request
    match:
      path: /tie
  - spec: orders@1.10.0
    direction: request
    match:
      path: /tie
  - spec: errors
    direction: request
    match:
      path: /typed
      content-type: application/json
`)
	require.NoError(t, err)

	m := NewMatcher(nil)
	ctx := context.Background()
	best := func(q Query) *Entry { return m.Best(ctx, p, q) }

	e := best(Query{Direction: message.Request, Path: "/json/alpha/authenticate"})
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Index, "literal path beats wildcard")

	e = best(Query{Direction: message.Request, Path: "/json/gamma/authenticate"})
	require.NotNil(t, e)
	assert.Equal(t, 0, e.Index)

	e = best(Query{Direction: message.Request, Path: "/json/beta/authenticate", Method: "post"})
	require.NotNil(t, e)
	assert.Equal(t, 2, e.Index, "more constraints win at equal specificity")

	e = best(Query{Direction: message.Request, Path: "/json/beta/authenticate", Method: "GET"})
	require.NotNil(t, e)
	assert.Equal(t, 3, e.Index)

	e = best(Query{Direction: message.Response, Path: "/json/x", Status: 503, HasStatus: true})
	require.NotNil(t, e)
	assert.Equal(t, 5, e.Index, "exact status outweighs class")

	e = best(Query{Direction: message.Response, Path: "/json/x", Status: 500, HasStatus: true})
	require.NotNil(t, e)
	assert.Equal(t, 4, e.Index)

	assert.Nil(t, best(Query{Direction: message.Response, Path: "/json/x"}), "status constraint fails without a status")
	assert.Nil(t, best(Query{Direction: message.Response, Path: "/json/x", Status: 200, HasStatus: true}))

	e = best(Query{Direction: message.Request, Path: "/tie"})
	require.NotNil(t, e)
	assert.Equal(t, 6, e.Index, "full tie resolves to declaration order")

	e = best(Query{Direction: message.Request, Path: "/typed", ContentType: "Application/JSON; charset=utf-8"})
	require.NotNil(t, e)
	assert.Equal(t, 8, e.Index)
	assert.Nil(t, best(Query{Direction: message.Request, Path: "/typed"}), "content type constraint fails without a content type")
	assert.Nil(t, best(Query{Direction: message.Request, Path: "/typed", ContentType: "text/plain"}))

	assert.Nil(t, best(Query{Direction: message.Request, Path: "/unknown"}))
	assert.Nil(t, m.Best(ctx, nil, Query{}))
}

func TestMatcher_When(t *testing.T) {
	t.Parallel()

	p, err := compileProfile(t, `
profile: w
version: "1"
transforms:
  - spec: orders
    direction: request
    match:
      path: /pay
      when: 'input.kind == "card"'
  - spec: errors
    direction: request
    match:
      path: /pay
`)
	require.NoError(t, err)
	require.True(t, p.HasWhen())

	m := NewMatcher(nil)
	ctx := context.Background()

	e := m.Best(ctx, p, Query{Direction: message.Request, Path: "/pay", Body: map[string]any{"kind": "card"}, BodyOK: true})
	require.NotNil(t, e)
	assert.Equal(t, 0, e.Index)

	e = m.Best(ctx, p, Query{Direction: message.Request, Path: "/pay", Body: map[string]any{"kind": "cash"}, BodyOK: true})
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Index)

	e = m.Best(ctx, p, Query{Direction: message.Request, Path: "/pay"})
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Index, "when does not match a non-JSON body")

	e = m.Best(ctx, p, Query{Direction: message.Request, Path: "/pay", Body: map[string]any{}, BodyOK: true})
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Index, "evaluation error is a non-match")
}

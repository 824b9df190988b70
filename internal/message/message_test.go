package message

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Direction
		wantErr bool
	}{
		{name: "request", input: "request", want: Request},
		{name: "response upper", input: "RESPONSE", want: Response},
		{name: "mixed with spaces", input: " Request ", want: Request},
		{name: "invalid", input: "both", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDirection(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDirection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.String(), tt.want.String())
		})
	}
}

func TestBody_EmptyIsNeverNil(t *testing.T) {
	t.Parallel()

	var zero Body
	assert.True(t, zero.IsEmpty())
	assert.True(t, EmptyBody().Equal(zero))

	v, err := zero.JSON()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBody_CopiesCallerMemory(t *testing.T) {
	t.Parallel()

	data := []byte(`{"a":1}`)
	b := JSONBody(data)
	data[2] = 'X'

	assert.Equal(t, `{"a":1}`, b.String())

	out := b.Bytes()
	out[0] = '['
	assert.Equal(t, `{"a":1}`, b.String())
}

func TestMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mt      MediaType
		essence string
		isJSON  bool
	}{
		{name: "plain json", mt: "application/json", essence: "application/json", isJSON: true},
		{name: "json with charset", mt: "Application/JSON; charset=utf-8", essence: "application/json", isJSON: true},
		{name: "problem json", mt: "application/problem+json", essence: "application/problem+json", isJSON: true},
		{name: "xml", mt: "text/xml", essence: "text/xml"},
		{name: "empty", mt: "", essence: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.essence, tt.mt.Essence())
			assert.Equal(t, tt.isJSON, tt.mt.IsJSON())
		})
	}

	assert.True(t, MediaType("application/json; charset=utf-8").Matches("APPLICATION/JSON"))
}

func TestHeaders_CaseInsensitiveMultiValue(t *testing.T) {
	t.Parallel()

	h := NewHeaders("X-Trace", "a", "x-trace", "b", "Accept", "*/*")

	assert.Equal(t, "a", h.Get("X-TRACE"))
	assert.Equal(t, []string{"a", "b"}, h.Values("x-trace"))
	assert.Equal(t, []string{"x-trace", "accept"}, h.Names())
	assert.Equal(t, 2, h.Len())

	h.Set("X-Trace", "c")
	assert.Equal(t, []string{"c"}, h.Values("x-trace"))

	h.Del("ACCEPT")
	assert.False(t, h.Has("accept"))
	assert.Equal(t, []string{"x-trace"}, h.Names())
}

func TestHeaders_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	h := NewHeaders("a", "1")
	c := h.Clone()
	c.Add("a", "2")
	c.Set("b", "3")

	assert.Equal(t, []string{"1"}, h.Values("a"))
	assert.False(t, h.Has("b"))
	assert.False(t, h.Equal(c))
}

func TestHeaders_HTTPRoundTrip(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Add("Content-Type", "application/json")
	src.Add("X-Multi", "1")
	src.Add("X-Multi", "2")

	h := HeadersFromHTTP(src)
	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Equal(t, []string{"1", "2"}, h.Values("x-multi"))
	assert.Equal(t, src, h.ToHTTP())
}

func TestMessage_WithMethodsReturnCopies(t *testing.T) {
	t.Parallel()

	orig := New(
		WithBody(JSONBody([]byte(`{"a":1}`))),
		WithHeader("X-A", "1"),
		WithPath("/a"),
		WithMethod("GET"),
		WithQuery("q=1"),
	)

	changed := orig.WithPath("/b").WithMethod("POST").WithQuery("").WithStatus(201)

	assert.Equal(t, "/a", orig.Path())
	assert.Equal(t, "GET", orig.Method())
	assert.Equal(t, "q=1", orig.Query())
	_, hasStatus := orig.Status()
	assert.False(t, hasStatus)

	assert.Equal(t, "/b", changed.Path())
	assert.Equal(t, "POST", changed.Method())
	code, ok := changed.Status()
	assert.True(t, ok)
	assert.Equal(t, 201, code)

	h := orig.Headers()
	h.Set("x-a", "mutated")
	assert.Equal(t, "1", orig.Header("x-a"))
}

func TestMessage_SessionIsDeepCopied(t *testing.T) {
	t.Parallel()

	session := map[string]any{"user": map[string]any{"id": "u-1"}}
	msg := New(WithSession(session))
	session["user"].(map[string]any)["id"] = "changed"

	assert.Equal(t, "u-1", msg.Session()["user"].(map[string]any)["id"])
}

func TestMessage_Equal(t *testing.T) {
	t.Parallel()

	build := func() Message {
		return New(
			WithBody(JSONBody([]byte(`{"a":1}`))),
			WithHeader("X-A", "1"),
			WithStatus(200),
			WithSession(map[string]any{"k": []any{"v"}}),
		)
	}

	assert.True(t, build().Equal(build()))
	assert.False(t, build().Equal(build().WithStatus(500)))
}

func TestMessage_ContentTypeFallsBackToHeader(t *testing.T) {
	t.Parallel()

	msg := New(
		WithBody(NewBody([]byte("{}"), "")),
		WithHeader("Content-Type", "application/json; charset=utf-8"),
	)
	assert.Equal(t, "application/json", msg.ContentType().Essence())
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	v, err := DecodeJSON([]byte(`{"a":[1,"x",null,true]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{int64(1), "x", nil, true}}, v)

	_, err = DecodeJSON([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrNotJSON)

	_, err = DecodeJSON([]byte(`{} {}`))
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestDecodeJSON_Numbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  any
	}{
		{name: "small integer", input: `7`, want: int64(7)},
		{name: "negative integer", input: `-12`, want: int64(-12)},
		{name: "beyond float53", input: `9007199254740993`, want: int64(9007199254740993)},
		{name: "beyond int64", input: `12345678901234567890`, want: uint64(12345678901234567890)},
		{name: "fraction", input: `1.5`, want: 1.5},
		{name: "exponent", input: `1e3`, want: float64(1000)},
		{name: "beyond uint64", input: `123456789012345678901234567890`, want: 1.2345678901234568e+29},
		{name: "beyond float64", input: `1e999`, want: json.Number("1e999")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeJSON([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_IntegerRoundTrip(t *testing.T) {
	t.Parallel()

	in := `{"id":9007199254740993,"n":12345678901234567890,"list":[-9223372036854775808,0.25]}`
	v, err := DecodeJSON([]byte(in))
	require.NoError(t, err)

	out, err := EncodeJSON(v)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Contains(t, string(out), `9007199254740993`)
	assert.Contains(t, string(out), `12345678901234567890`)
}

func TestEncodeJSON_NoHTMLEscape(t *testing.T) {
	t.Parallel()

	out, err := EncodeJSON(map[string]any{"url": "/a?b=1&c=<d>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"/a?b=1&c=<d>"}`, string(out))
}

func TestNewTransformContext(t *testing.T) {
	t.Parallel()

	msg := New(
		WithHeader("X-Api-Key", "k1"),
		WithHeader("X-Api-Key", "k2"),
		WithHeader("Cookie", "sid=abc; theme=dark"),
		WithQuery("page=2&page=3&q=go"),
		WithStatus(404),
		WithSession(map[string]any{"sub": "alice"}),
	)

	tc := NewTransformContext(msg, nil)

	code, ok := tc.Status()
	require.True(t, ok)
	assert.Equal(t, 404, code)
	assert.Equal(t, "k1", tc.Header("x-api-key"))
	assert.Equal(t, "2", tc.QueryParam("page"))
	assert.Equal(t, "abc", tc.Cookie("sid"))

	vars := tc.Vars()
	assert.Equal(t, int64(404), vars["status"])
	assert.Equal(t, []any{"k1", "k2"}, vars["headers_all"].(map[string]any)["x-api-key"])
	assert.Equal(t, "go", vars["queryParams"].(map[string]any)["q"])
	assert.Equal(t, "dark", vars["cookies"].(map[string]any)["theme"])
	assert.Equal(t, "alice", vars["session"].(map[string]any)["sub"])
}

func TestEmptyContext_Vars(t *testing.T) {
	t.Parallel()

	vars := EmptyContext().Vars()
	assert.Nil(t, vars["status"])
	assert.Empty(t, vars["headers"])
	assert.Empty(t, vars["session"])

	var nilCtx *TransformContext
	_, ok := nilCtx.Status()
	assert.False(t, ok)
	assert.NotNil(t, nilCtx.Vars())
}

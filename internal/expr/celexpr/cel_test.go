package celexpr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/msgxform/internal/message"
)

func TestEngine_Evaluate(t *testing.T) {
	t.Parallel()

	tc := message.NewTransformContext(message.New(
		message.WithHeader("X-Tenant", "acme"),
		message.WithQuery("page=2"),
		message.WithSession(map[string]any{"sub": "alice"}),
	), nil)

	tests := []struct {
		name  string
		expr  string
		input any
		want  any
	}{
		{
			name:  "rename field",
			expr:  `{"userId": input.user_id}`,
			input: map[string]any{"user_id": "u-1"},
			want:  map[string]any{"userId": "u-1"},
		},
		{
			name:  "integer literal arithmetic",
			expr:  `1 + 2`,
			input: nil,
			want:  int64(3),
		},
		{
			name:  "integer body arithmetic",
			expr:  `{"n": input.n + 1}`,
			input: map[string]any{"n": int64(1)},
			want:  map[string]any{"n": int64(2)},
		},
		{
			name:  "large integer kept exact",
			expr:  `input.id`,
			input: map[string]any{"id": int64(9007199254740993)},
			want:  int64(9007199254740993),
		},
		{
			name:  "unsigned integer kept exact",
			expr:  `input.n`,
			input: map[string]any{"n": uint64(12345678901234567890)},
			want:  uint64(12345678901234567890),
		},
		{
			name:  "double arithmetic",
			expr:  `input.price * 2.0`,
			input: map[string]any{"price": 1.25},
			want:  2.5,
		},
		{
			name:  "int compared with double",
			expr:  `input.n > 1.5`,
			input: map[string]any{"n": int64(2)},
			want:  true,
		},
		{
			name:  "timestamp as RFC 3339",
			expr:  `timestamp("2024-01-02T03:04:05Z")`,
			input: nil,
			want:  "2024-01-02T03:04:05Z",
		},
		{
			name:  "duration as seconds",
			expr:  `duration("1500ms")`,
			input: nil,
			want:  "1.500s",
		},
		{
			name:  "bytes as base64",
			expr:  `b"hi"`,
			input: nil,
			want:  "aGk=",
		},
		{
			name:  "optional none is null",
			expr:  `optional.none()`,
			input: nil,
			want:  nil,
		},
		{
			name:  "headers are lowercase",
			expr:  `headers["x-tenant"]`,
			input: nil,
			want:  "acme",
		},
		{
			name:  "query params",
			expr:  `queryParams.page`,
			input: nil,
			want:  "2",
		},
		{
			name:  "session",
			expr:  `session.sub`,
			input: nil,
			want:  "alice",
		},
		{
			name:  "status absent on requests",
			expr:  `status == null`,
			input: nil,
			want:  true,
		},
		{
			name:  "list result",
			expr:  `input.items.map(i, i.id)`,
			input: map[string]any{"items": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
			want:  []any{"a", "b"},
		},
		{
			name:  "null result",
			expr:  `null`,
			input: map[string]any{},
			want:  nil,
		},
		{
			name:  "string extension",
			expr:  `input.name.upperAscii()`,
			input: map[string]any{"name": "bob"},
			want:  "BOB",
		},
	}

	engine := MustNew()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compiled, err := engine.Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, compiled.Source())

			got, err := compiled.Evaluate(context.Background(), tt.input, tc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_CompileError(t *testing.T) {
	t.Parallel()

	_, err := MustNew().Compile(`input.`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile CEL expression")
}

func TestEngine_EvaluateError(t *testing.T) {
	t.Parallel()

	compiled, err := MustNew().Compile(`input.missing.deeper`)
	require.NoError(t, err)

	_, err = compiled.Evaluate(context.Background(), map[string]any{}, message.EmptyContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CEL evaluation failed")
}

func TestEngine_EvaluateNoJSONMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
	}{
		{name: "integer map key", expr: `{1: "a"}`},
		{name: "infinite double", expr: `1.0 / 0.0`},
		{name: "type value", expr: `type(1)`},
	}

	engine := MustNew()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compiled, err := engine.Compile(tt.expr)
			require.NoError(t, err)

			_, err = compiled.Evaluate(context.Background(), nil, message.EmptyContext())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "has no JSON mapping")
		})
	}
}

func TestEngine_ID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cel", MustNew().ID())
}

package xformerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := WrapLoadError(ExpressionCompile, "bad expr", "orders", "specs/orders.yaml", cause)
	wrapped := fmt.Errorf("loading: %w", err)

	assert.ErrorIs(t, wrapped, ErrExpressionCompile)
	assert.ErrorIs(t, wrapped, &LoadError{Kind: ExpressionCompile})
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrSpecParse)
	assert.True(t, IsLoadError(wrapped))
	assert.False(t, IsEvalError(wrapped))

	assert.Equal(t,
		`ExpressionCompileError: bad expr (spec "orders", source specs/orders.yaml): boom`,
		err.Error())
}

func TestLoadError_MessageWithoutSpec(t *testing.T) {
	t.Parallel()

	err := NewLoadError(SpecParse, "missing id", "", "a.yaml")
	assert.Equal(t, "SpecParseError: missing id (source a.yaml)", err.Error())

	err = NewLoadError(ProfileResolve, "no spec", "", "")
	assert.Equal(t, "ProfileResolveError: no spec", err.Error())
}

func TestEvalError_KindsAndURNs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     EvalKind
		sentinel error
		urn      string
	}{
		{ExpressionEval, ErrExpressionEval, URNExpressionEvalFailed},
		{EvalBudgetExceeded, ErrEvalBudgetExceeded, URNEvalBudgetExceeded},
		{InputSchemaViolation, ErrInputSchemaViolation, URNSchemaValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			err := NewEvalError(tt.kind, "failed", "spec-a")
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.urn, err.URN())
			assert.Equal(t, -1, err.ChainStep)

			got, ok := AsEvalError(fmt.Errorf("wrap: %w", err))
			require.True(t, ok)
			assert.Equal(t, tt.kind, got.Kind)
		})
	}
}

func TestEvalError_ChainStepInMessage(t *testing.T) {
	t.Parallel()

	err := WrapEvalError(EvalBudgetExceeded, "too slow", "s", 2, nil)
	assert.Equal(t, `EvalBudgetExceededError: too slow (spec "s", step 2)`, err.Error())
}

func TestNewProblem(t *testing.T) {
	t.Parallel()

	err := NewEvalError(InputSchemaViolation, "field x required", "s")
	p := NewProblem(err, 0, "/api/orders")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(p.Marshal(), &decoded))
	assert.Equal(t, URNSchemaValidationFailed, decoded["type"])
	assert.Equal(t, ProblemTitle, decoded["title"])
	assert.Equal(t, float64(502), decoded["status"])
	assert.Equal(t, `field x required (spec "s")`, decoded["detail"])
	assert.Equal(t, "/api/orders", decoded["instance"])
}

func TestNewProblem_DetailCarriesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("no such key: missing")
	err := WrapEvalError(ExpressionEval, "expression evaluation failed", "users", 1, cause)
	p := NewProblem(err, 0, "")

	assert.Equal(t, `expression evaluation failed (spec "users", step 1): no such key: missing`, p.Detail)
	assert.Equal(t, "ExpressionEvalError: "+p.Detail, err.Error())
}

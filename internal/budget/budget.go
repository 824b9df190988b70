// Package budget evaluates compiled expressions under a wall-clock and an
// output-size budget.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// Default budget values.
const (
	DefaultMaxEval        = 50 * time.Millisecond
	DefaultMaxOutputBytes = 1 << 20
)

// NoStep marks an evaluation outside an apply chain.
const NoStep = -1

// Budget bounds one evaluation. Zero fields take the defaults.
type Budget struct {
	MaxEval        time.Duration
	MaxOutputBytes int
}

// Default returns the default budget.
func Default() Budget {
	return Budget{MaxEval: DefaultMaxEval, MaxOutputBytes: DefaultMaxOutputBytes}
}

func (b Budget) withDefaults() Budget {
	if b.MaxEval <= 0 {
		b.MaxEval = DefaultMaxEval
	}
	if b.MaxOutputBytes <= 0 {
		b.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return b
}

// Evaluator runs expressions within a budget. It is safe for concurrent use.
type Evaluator struct {
	budget Budget
}

// NewEvaluator creates an evaluator.
func NewEvaluator(b Budget) *Evaluator {
	return &Evaluator{budget: b.withDefaults()}
}

// Budget returns the effective budget.
func (e *Evaluator) Budget() Budget {
	return e.budget
}

type outcome struct {
	value any
	err   error
}

// Evaluate runs compiled against input. Exceeding the time or output budget
// yields an EvalBudgetExceeded error and no result; an engine failure
// yields ExpressionEval. step is the apply chain index, or NoStep.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	compiled expr.Compiled,
	input any,
	tc *message.TransformContext,
	specID string,
	step int,
) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget.MaxEval)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("expression panicked: %v", r)}
			}
		}()
		v, err := compiled.Evaluate(ctx, input, tc)
		done <- outcome{value: v, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, e.timeoutError(ctx, specID, step)
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, e.timeoutError(ctx, specID, step)
		}
		return nil, xformerr.WrapEvalError(xformerr.ExpressionEval, "expression evaluation failed", specID, step, res.err)
	}

	size, err := outputSize(res.value)
	if err != nil {
		return nil, xformerr.WrapEvalError(xformerr.ExpressionEval, "expression result is not serializable", specID, step, err)
	}
	if size > e.budget.MaxOutputBytes {
		return nil, xformerr.WrapEvalError(xformerr.EvalBudgetExceeded,
			fmt.Sprintf("output size %d bytes exceeds budget of %d bytes", size, e.budget.MaxOutputBytes),
			specID, step, nil)
	}
	return res.value, nil
}

func (e *Evaluator) timeoutError(ctx context.Context, specID string, step int) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return xformerr.WrapEvalError(xformerr.ExpressionEval, "evaluation cancelled", specID, step, ctx.Err())
	}
	return xformerr.WrapEvalError(xformerr.EvalBudgetExceeded,
		fmt.Sprintf("evaluation exceeded time budget of %s", e.budget.MaxEval),
		specID, step, ctx.Err())
}

func outputSize(v any) (int, error) {
	data, err := message.EncodeJSON(v)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// ValidateInput checks doc against an input schema. A nil schema accepts
// everything.
func ValidateInput(schema *spec.Schema, doc any, specID string) error {
	if schema == nil {
		return nil
	}
	if err := schema.Validate(doc); err != nil {
		return xformerr.WrapEvalError(xformerr.InputSchemaViolation,
			"input does not match the declared schema", specID, NoStep, err)
	}
	return nil
}

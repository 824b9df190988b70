// Package celexpr implements the "cel" expression language with cel-go.
//
// Expressions see the message body as the variable input and the transform
// context as headers, headers_all, status, queryParams, cookies and session.
// A spec renaming a field reads:
//
//	transform:
//	  expr: '{"userId": input.user_id}'
//
// Integral body numbers reach CEL as int or uint, so input.n + 1 is integer
// arithmetic. Results are converted back to plain JSON values keeping int
// and uint exact; timestamps and durations use their protobuf JSON form.
package celexpr

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
)

// ID is the language identifier of this engine.
const ID = "cel"

// interruptCheckFrequency is how many comprehension iterations run between
// checks of the evaluation context.
const interruptCheckFrequency = 100

// Engine compiles CEL expressions.
type Engine struct {
	env *cel.Env
}

// New creates the CEL engine and its environment.
func New() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("headers_all", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("status", cel.DynType),
		cel.Variable("queryParams", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("cookies", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("session", cel.MapType(cel.StringType, cel.DynType)),
		cel.OptionalTypes(),
		cel.CrossTypeNumericComparisons(true),
		ext.Strings(),
		ext.Encoders(),
		ext.Lists(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// MustNew is New that panics on error.
func MustNew() *Engine {
	e, err := New()
	if err != nil {
		panic(err)
	}
	return e
}

// ID implements expr.Engine.
func (e *Engine) ID() string { return ID }

// Compile implements expr.Engine.
func (e *Engine) Compile(source string) (expr.Compiled, error) {
	ast, issues := e.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.InterruptCheckFrequency(interruptCheckFrequency),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &compiled{source: source, program: program}, nil
}

type compiled struct {
	source  string
	program cel.Program
}

func (c *compiled) Source() string { return c.source }

func (c *compiled) Evaluate(ctx context.Context, input any, tc *message.TransformContext) (any, error) {
	vars := tc.Vars()
	vars["input"] = input

	out, _, err := c.program.ContextEval(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	value, err := toJSON(out)
	if err != nil {
		return nil, fmt.Errorf("CEL result of type %s has no JSON mapping: %w", out.Type().TypeName(), err)
	}
	return value, nil
}

// Package tmplexpr implements the "template" expression language with
// text/template. The template data holds input plus the transform context
// variables. Output that parses as JSON is returned decoded, anything else
// as a string.
package tmplexpr

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// ID is the language identifier of this engine.
const ID = "template"

// Engine compiles text templates.
type Engine struct {
	logger  observability.Logger
	funcMap template.FuncMap
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFuncs adds template functions, replacing built-ins of the same name.
func WithFuncs(funcs template.FuncMap) Option {
	return func(e *Engine) {
		for k, v := range funcs {
			e.funcMap[k] = v
		}
	}
}

// New creates the template engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:  observability.NopLogger(),
		funcMap: defaultFuncs(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID implements expr.Engine.
func (e *Engine) ID() string { return ID }

// Compile implements expr.Engine.
func (e *Engine) Compile(source string) (expr.Compiled, error) {
	tmpl, err := template.New("expr").
		Option("missingkey=zero").
		Funcs(e.funcMap).
		Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &compiled{source: source, tmpl: tmpl, logger: e.logger}, nil
}

type compiled struct {
	source string
	tmpl   *template.Template
	logger observability.Logger
}

func (c *compiled) Source() string { return c.source }

func (c *compiled) Evaluate(ctx context.Context, input any, tc *message.TransformContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := tc.Vars()
	data["input"] = input

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("template execution failed: %w", err)
	}

	if parsed, err := message.DecodeJSON(buf.Bytes()); err == nil {
		return parsed, nil
	}

	c.logger.Debug("template output is not JSON, returning text",
		observability.Int("output_length", buf.Len()))
	return buf.String(), nil
}

// Package jsonpath implements the "jsonpath" expression language on top of
// gjson path syntax. The expression selects a value from the input
// document; a path that selects nothing yields null.
//
//	transform:
//	  lang: jsonpath
//	  expr: data.items.#.id
package jsonpath

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
)

// ID is the language identifier of this engine.
const ID = "jsonpath"

// Engine compiles gjson paths.
type Engine struct{}

// New creates the engine.
func New() *Engine { return &Engine{} }

// ID implements expr.Engine.
func (e *Engine) ID() string { return ID }

// Compile implements expr.Engine. A leading "$." or "$" is accepted and
// stripped so JSONPath-style sources read naturally.
func (e *Engine) Compile(source string) (expr.Compiled, error) {
	path := strings.TrimSpace(source)
	switch {
	case path == "" || path == "$":
		path = "@this"
	case strings.HasPrefix(path, "$."):
		path = path[2:]
	}
	if path == "" {
		return nil, errors.New("empty path")
	}
	if !balanced(path) {
		return nil, fmt.Errorf("unbalanced brackets in path %q", source)
	}
	return &compiled{source: source, path: path}, nil
}

// balanced reports whether the bracket pairs used by gjson queries and
// multipaths are closed.
func balanced(path string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	escaped := false
	for _, r := range path {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

type compiled struct {
	source string
	path   string
}

func (c *compiled) Source() string { return c.source }

func (c *compiled) Evaluate(ctx context.Context, input any, _ *message.TransformContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := message.EncodeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}

	res := gjson.GetBytes(doc, c.path)
	if !res.Exists() {
		return nil, nil
	}

	out, err := message.DecodeJSON([]byte(res.Raw))
	if err != nil {
		return nil, fmt.Errorf("path %q selected invalid JSON: %w", c.source, err)
	}
	return out, nil
}

// Package builtin assembles the default expression engine registry.
package builtin

import (
	"fmt"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/expr/celexpr"
	"github.com/vyrodovalexey/msgxform/internal/expr/jsonpath"
	"github.com/vyrodovalexey/msgxform/internal/expr/tmplexpr"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// NewRegistry returns a registry holding the cel, jsonpath and template
// engines.
func NewRegistry(logger observability.Logger) (*expr.Registry, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	cel, err := celexpr.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create cel engine: %w", err)
	}

	registry := expr.NewRegistry(expr.WithRegistryLogger(logger))
	registry.Register(cel)
	registry.Register(jsonpath.New())
	registry.Register(tmplexpr.New(tmplexpr.WithLogger(logger)))
	return registry, nil
}

// MustNewRegistry is NewRegistry that panics on error.
func MustNewRegistry() *expr.Registry {
	r, err := NewRegistry(nil)
	if err != nil {
		panic(err)
	}
	return r
}

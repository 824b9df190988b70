// Package expr defines the pluggable expression engine contract and the
// registry that resolves engines by language id.
//
// An Engine compiles source text once at load time into a Compiled
// expression. Compiled expressions are immutable and are evaluated
// concurrently against a decoded JSON document plus the per-message
// TransformContext.
package expr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// DefaultLang is the language used when a spec declares none.
const DefaultLang = "cel"

// ErrEngineNotFound is returned by Resolve for an unknown language id.
var ErrEngineNotFound = errors.New("expression engine not found")

// Compiled is a compiled, immutable expression.
type Compiled interface {
	// Evaluate runs the expression. input is a decoded JSON value: nil,
	// bool, int64, uint64, float64, string, []any or map[string]any. The
	// result uses the same representation.
	Evaluate(ctx context.Context, input any, tc *message.TransformContext) (any, error)

	// Source returns the original expression text.
	Source() string
}

// Engine compiles expressions of one language.
type Engine interface {
	// ID is the language identifier, matched case-insensitively.
	ID() string

	// Compile parses and checks source.
	Compile(source string) (Compiled, error)
}

// Registry maps language ids to engines. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	logger  observability.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		engines: make(map[string]Engine),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an engine under its lowercase id. Registering an id twice
// replaces the earlier engine.
func (r *Registry) Register(engine Engine) {
	id := strings.ToLower(engine.ID())

	r.mu.Lock()
	_, replaced := r.engines[id]
	r.engines[id] = engine
	r.mu.Unlock()

	r.logger.Debug("expression engine registered",
		observability.String("lang", id),
		observability.Bool("replaced", replaced),
	)
}

// Resolve returns the engine registered under id.
func (r *Registry) Resolve(id string) (Engine, error) {
	r.mu.RLock()
	engine, ok := r.engines[strings.ToLower(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrEngineNotFound, id, strings.Join(r.IDs(), ", "))
	}
	return engine, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Truthy reports whether an expression result counts as true: nil is false,
// booleans are their value, strings are true when non-empty, and everything
// else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		return true
	}
}

// Stringify converts a scalar result to text. Strings are returned as is,
// other values as their JSON encoding. nil yields ok == false.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	default:
		data, err := message.EncodeJSON(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(data), true
	}
}

package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/budget"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// ErrorMode decides what Transform returns after an evaluation failure.
type ErrorMode int

// Error modes.
const (
	// PassThrough forwards the original message unchanged.
	PassThrough ErrorMode = iota
	// Deny replaces the message with a problem+json error response.
	Deny
)

// String returns the configuration literal of the mode.
func (m ErrorMode) String() string {
	if m == Deny {
		return "DENY"
	}
	return "PASS_THROUGH"
}

// ParseErrorMode parses PASS_THROUGH or DENY, case-insensitively. Dashes
// are accepted in place of underscores.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "", "PASS_THROUGH", "PASSTHROUGH":
		return PassThrough, nil
	case "DENY":
		return Deny, nil
	default:
		return PassThrough, fmt.Errorf("invalid error mode %q, must be PASS_THROUGH or DENY", s)
	}
}

// SchemaValidation controls input schema enforcement.
type SchemaValidation int

// Schema validation modes.
const (
	// SchemaLenient carries schemas without validating instances.
	SchemaLenient SchemaValidation = iota
	// SchemaStrict rejects bodies that violate the input schema.
	SchemaStrict
)

// ParseSchemaValidation parses "strict" or "lenient".
func ParseSchemaValidation(s string) (SchemaValidation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return SchemaLenient, nil
	case "strict":
		return SchemaStrict, nil
	default:
		return SchemaLenient, fmt.Errorf("invalid schema validation mode %q, must be strict or lenient", s)
	}
}

// DefaultDenyStatus returns the default DENY status per evaluation kind.
func DefaultDenyStatus() map[xformerr.EvalKind]int {
	return map[xformerr.EvalKind]int{
		xformerr.ExpressionEval:       http.StatusBadGateway,
		xformerr.EvalBudgetExceeded:   http.StatusBadGateway,
		xformerr.InputSchemaViolation: http.StatusBadRequest,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithErrorMode sets the initial error mode.
func WithErrorMode(mode ErrorMode) Option {
	return func(e *Engine) {
		e.errorMode = mode
	}
}

// WithDenyStatus overrides the DENY status for one evaluation kind.
func WithDenyStatus(kind xformerr.EvalKind, status int) Option {
	return func(e *Engine) {
		e.denyStatus[kind] = status
	}
}

// WithBudget sets the evaluation budget.
func WithBudget(b budget.Budget) Option {
	return func(e *Engine) {
		e.evaluator = budget.NewEvaluator(b)
	}
}

// WithSchemaValidation sets the input schema enforcement mode.
func WithSchemaValidation(mode SchemaValidation) Option {
	return func(e *Engine) {
		e.schemaValidation = mode
	}
}

// WithListener adds a telemetry listener.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.notifier.listeners = append(e.notifier.listeners, l)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

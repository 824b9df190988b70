// Package xformerr defines the two-tier error taxonomy of the transform
// engine.
//
// Load-phase errors (*LoadError) are raised while compiling specs and
// profiles and are always returned to the caller of Load/Reload.
// Evaluation-phase errors (*EvalError) are raised while running a compiled
// spec and never escape the engine's Transform call; each evaluation kind
// has a stable URN used as the RFC 9457 problem type.
//
// Both types follow the project error convention: Error(), Unwrap() and
// Is() are implemented, and each kind has a sentinel so callers can write
// errors.Is(err, xformerr.ErrProfileResolve).
package xformerr

import (
	"errors"
	"fmt"
	"strings"
)

// LoadKind enumerates load-phase error kinds.
type LoadKind int

// Load-phase error kinds.
const (
	SpecParse LoadKind = iota
	ExpressionCompile
	SchemaValidation
	ProfileResolve
	SensitivePathSyntax
)

// String returns the kind name.
func (k LoadKind) String() string {
	switch k {
	case SpecParse:
		return "SpecParseError"
	case ExpressionCompile:
		return "ExpressionCompileError"
	case SchemaValidation:
		return "SchemaValidationError"
	case ProfileResolve:
		return "ProfileResolveError"
	case SensitivePathSyntax:
		return "SensitivePathSyntaxError"
	default:
		return fmt.Sprintf("LoadError(%d)", int(k))
	}
}

// EvalKind enumerates evaluation-phase error kinds.
type EvalKind int

// Evaluation-phase error kinds.
const (
	ExpressionEval EvalKind = iota
	EvalBudgetExceeded
	InputSchemaViolation
)

// String returns the kind name.
func (k EvalKind) String() string {
	switch k {
	case ExpressionEval:
		return "ExpressionEvalError"
	case EvalBudgetExceeded:
		return "EvalBudgetExceededError"
	case InputSchemaViolation:
		return "InputSchemaViolation"
	default:
		return fmt.Sprintf("EvalError(%d)", int(k))
	}
}

// Problem type URNs for evaluation-phase errors.
const (
	URNExpressionEvalFailed   = "urn:message-xform:error:expression-eval-failed"
	URNEvalBudgetExceeded     = "urn:message-xform:error:eval-budget-exceeded"
	URNSchemaValidationFailed = "urn:message-xform:error:schema-validation-failed"
)

// URN returns the stable problem type of the kind.
func (k EvalKind) URN() string {
	switch k {
	case EvalBudgetExceeded:
		return URNEvalBudgetExceeded
	case InputSchemaViolation:
		return URNSchemaValidationFailed
	default:
		return URNExpressionEvalFailed
	}
}

// Sentinels matched by errors.Is against the structured errors below.
var (
	ErrSpecParse            = errors.New("spec parse error")
	ErrExpressionCompile    = errors.New("expression compile error")
	ErrSchemaValidation     = errors.New("schema validation error")
	ErrProfileResolve       = errors.New("profile resolve error")
	ErrSensitivePathSyntax  = errors.New("sensitive path syntax error")
	ErrExpressionEval       = errors.New("expression evaluation error")
	ErrEvalBudgetExceeded   = errors.New("evaluation budget exceeded")
	ErrInputSchemaViolation = errors.New("input schema violation")
)

var loadSentinels = map[LoadKind]error{
	SpecParse:           ErrSpecParse,
	ExpressionCompile:   ErrExpressionCompile,
	SchemaValidation:    ErrSchemaValidation,
	ProfileResolve:      ErrProfileResolve,
	SensitivePathSyntax: ErrSensitivePathSyntax,
}

var evalSentinels = map[EvalKind]error{
	ExpressionEval:       ErrExpressionEval,
	EvalBudgetExceeded:   ErrEvalBudgetExceeded,
	InputSchemaViolation: ErrInputSchemaViolation,
}

// LoadError is a failure while compiling a spec or profile.
type LoadError struct {
	Kind    LoadKind
	Message string
	SpecID  string
	Source  string
	Cause   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.SpecID != "" {
		fmt.Fprintf(&b, " (spec %q", e.SpecID)
		if e.Source != "" {
			fmt.Fprintf(&b, ", source %s", e.Source)
		}
		b.WriteString(")")
	} else if e.Source != "" {
		fmt.Fprintf(&b, " (source %s)", e.Source)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel or another *LoadError of the same kind.
func (e *LoadError) Is(target error) bool {
	if t, ok := target.(*LoadError); ok {
		return t.Kind == e.Kind
	}
	return target == loadSentinels[e.Kind]
}

// EvalError is a failure while evaluating a compiled spec.
type EvalError struct {
	Kind    EvalKind
	Message string
	SpecID  string
	// ChainStep is the zero-based apply step, or -1 outside a chain.
	ChainStep int
	Cause     error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return e.Kind.String() + ": " + e.Detail()
}

// Detail is the message with the spec, chain step and cause, without the
// kind prefix. It is the detail member of DENY problem documents.
func (e *EvalError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.SpecID != "" {
		fmt.Fprintf(&b, " (spec %q", e.SpecID)
		if e.ChainStep >= 0 {
			fmt.Fprintf(&b, ", step %d", e.ChainStep)
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel or another *EvalError of the same kind.
func (e *EvalError) Is(target error) bool {
	if t, ok := target.(*EvalError); ok {
		return t.Kind == e.Kind
	}
	return target == evalSentinels[e.Kind]
}

// URN returns the problem type URN of the error kind.
func (e *EvalError) URN() string {
	return e.Kind.URN()
}

// NewLoadError creates a load-phase error.
func NewLoadError(kind LoadKind, message, specID, source string) *LoadError {
	return &LoadError{Kind: kind, Message: message, SpecID: specID, Source: source}
}

// WrapLoadError creates a load-phase error with a cause.
func WrapLoadError(kind LoadKind, message, specID, source string, cause error) *LoadError {
	return &LoadError{Kind: kind, Message: message, SpecID: specID, Source: source, Cause: cause}
}

// NewEvalError creates an evaluation-phase error outside an apply chain.
func NewEvalError(kind EvalKind, message, specID string) *EvalError {
	return &EvalError{Kind: kind, Message: message, SpecID: specID, ChainStep: -1}
}

// WrapEvalError creates an evaluation-phase error with a cause and chain step.
func WrapEvalError(kind EvalKind, message, specID string, step int, cause error) *EvalError {
	return &EvalError{Kind: kind, Message: message, SpecID: specID, ChainStep: step, Cause: cause}
}

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsEvalError reports whether err is or wraps an *EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// AsEvalError extracts an *EvalError from err.
func AsEvalError(err error) (*EvalError, bool) {
	var ee *EvalError
	ok := errors.As(err, &ee)
	return ee, ok
}

// Package spec compiles transform spec documents.
//
// A spec is one YAML document declaring a body expression plus optional
// header, status and URL rewrite rules:
//
//	id: orders-v2
//	version: "2.1.0"
//	transform:
//	  expr: '{"userId": input.user_id}'
//	headers:
//	  remove: ["x-internal-*"]
//	  add:
//	    x-transformed-by: msgxform
//	status:
//	  set: 202
//	  when: 'has(input.queued)'
//
// Compiled specs are immutable and safe to share between goroutines.
package spec

import (
	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
)

// TransformSpec is a compiled spec. Fields must not be modified after
// compilation.
type TransformSpec struct {
	ID          string
	Version     string
	Description string
	Lang        string
	// Source is the path the spec was loaded from, if any.
	Source string

	// Expr is set for unidirectional specs.
	Expr expr.Compiled
	// Forward and Reverse are set for bidirectional specs.
	Forward expr.Compiled
	Reverse expr.Compiled

	// Apply is the ordered chain around Expr; empty means Expr alone.
	Apply []ApplyStep

	InputSchema  *Schema
	OutputSchema *Schema

	Headers *HeaderSpec
	Status  *StatusSpec
	URL     *URLSpec

	Sensitive []SensitivePath
}

// Key returns the registry key "id@version".
func (s *TransformSpec) Key() string {
	return Key(s.ID, s.Version)
}

// Key joins an id and a version into a registry key.
func Key(id, version string) string {
	return id + "@" + version
}

// Bidirectional reports whether the spec uses forward and reverse
// expressions.
func (s *TransformSpec) Bidirectional() bool {
	return s.Forward != nil && s.Reverse != nil
}

// ExpressionFor returns the body expression used for a direction. Forward
// maps upstream responses to the client shape; Reverse maps client
// requests back to the upstream shape.
func (s *TransformSpec) ExpressionFor(dir message.Direction) expr.Compiled {
	if !s.Bidirectional() {
		return s.Expr
	}
	if dir == message.Response {
		return s.Forward
	}
	return s.Reverse
}

// ApplyStep is one step of a mapper chain. The step that runs the main
// expression has an empty Mapper.
type ApplyStep struct {
	Mapper string
	Expr   expr.Compiled
}

// IsMain reports whether the step runs the main expression.
func (s ApplyStep) IsMain() bool { return s.Mapper == "" }

// NamedValue is a static header or query parameter addition.
type NamedValue struct {
	Name  string
	Value string
}

// NamedExpr is a dynamic header or query parameter addition.
type NamedExpr struct {
	Name string
	Expr expr.Compiled
}

// Rename maps an old header name to a new one.
type Rename struct {
	From string
	To   string
}

// HeaderSpec holds header rewrite rules, applied as remove, rename, static
// add, dynamic add. Names are lowercase.
type HeaderSpec struct {
	Remove     []Glob
	Rename     []Rename
	Add        []NamedValue
	AddDynamic []NamedExpr
}

// IsEmpty reports whether the spec has no rules.
func (h *HeaderSpec) IsEmpty() bool {
	return h == nil || len(h.Remove)+len(h.Rename)+len(h.Add)+len(h.AddDynamic) == 0
}

// StatusSpec overrides the status code, optionally guarded by a predicate
// evaluated on the transformed body.
type StatusSpec struct {
	Set  int
	When expr.Compiled
}

// URLSpec holds request URL rewrite rules. Expressions evaluate against the
// original request body. Query parameter names are case-sensitive.
type URLSpec struct {
	Path            expr.Compiled
	QueryRemove     []Glob
	QueryAdd        []NamedValue
	QueryAddDynamic []NamedExpr
	Method          string
	MethodWhen      expr.Compiled
}

// HasQueryOps reports whether any query parameter rule is present.
func (u *URLSpec) HasQueryOps() bool {
	return len(u.QueryRemove)+len(u.QueryAdd)+len(u.QueryAddDynamic) > 0
}

// Package profile compiles routing profiles and matches messages against
// them.
//
// A profile binds specs to request or response match patterns:
//
//	profile: storefront
//	version: "1"
//	transforms:
//	  - spec: orders@2.1.0
//	    direction: request
//	    match:
//	      path: /api/orders/**
//	      method: POST
//	      content-type: application/json
//	  - spec: errors
//	    direction: response
//	    match:
//	      path: /api/**
//	      status: 5xx
package profile

import (
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/status"
)

// Profile is a compiled profile. It is immutable after compilation.
type Profile struct {
	ID          string
	Version     string
	Description string
	Source      string
	Entries     []*Entry
}

// HasWhen reports whether any entry carries a body predicate.
func (p *Profile) HasWhen() bool {
	for _, e := range p.Entries {
		if e.When != nil {
			return true
		}
	}
	return false
}

// Entry binds a resolved spec to a match pattern.
type Entry struct {
	// Index is the declaration position in the profile.
	Index     int
	SpecRef   string
	Spec      *spec.TransformSpec
	Direction message.Direction

	PathPattern string
	segments    []string

	// Method is uppercase; empty means any.
	Method string
	// ContentType is compared by essence; empty means any.
	ContentType message.MediaType
	// Status is the zero Pattern when unset. Only response entries carry one.
	Status status.Pattern
	// When is an optional predicate on the original body.
	When expr.Compiled
}

// Specificity counts the literal segments of the path pattern.
func (e *Entry) Specificity() int {
	n := 0
	for _, seg := range e.segments {
		if seg != "*" && seg != "**" {
			n++
		}
	}
	return n
}

// ConstraintCount is the tie-breaker after specificity: one per method,
// content type and when predicate, plus the status pattern weight.
func (e *Entry) ConstraintCount() int {
	n := 0
	if e.Method != "" {
		n++
	}
	if e.ContentType != "" {
		n++
	}
	if e.When != nil {
		n++
	}
	return n + e.Status.Weight()
}

// MatchPath reports whether path matches the entry's glob. * matches
// exactly one segment and ** matches zero or more.
func (e *Entry) MatchPath(path string) bool {
	if e.PathPattern == path {
		return true
	}
	return matchSegments(e.segments, splitPath(path))
}

func splitPath(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	switch pattern[0] {
	case "**":
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(path) > 0 && matchSegments(pattern[1:], path[1:])
	default:
		return len(path) > 0 && pattern[0] == path[0] && matchSegments(pattern[1:], path[1:])
	}
}

package engine

import (
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// ResultKind identifies the active variant of a Result.
type ResultKind int

// Result variants.
const (
	// KindPassthrough means no profile entry matched.
	KindPassthrough ResultKind = iota + 1
	// KindSuccess carries the transformed message, or the original one
	// when a failure was absorbed by PASS_THROUGH mode.
	KindSuccess
	// KindError carries a problem+json error response.
	KindError
)

// Metric label values per variant.
const (
	resultSuccess     = "success"
	resultError       = "error"
	resultPassthrough = "passthrough"
)

// String returns the variant name.
func (k ResultKind) String() string {
	switch k {
	case KindPassthrough:
		return resultPassthrough
	case KindSuccess:
		return resultSuccess
	case KindError:
		return resultError
	default:
		return "unknown"
	}
}

// Result is the outcome of Transform. Exactly one variant is active; build
// it with Success, Failure or Passthrough.
type Result struct {
	kind        ResultKind
	msg         message.Message
	specID      string
	specVersion string
	err         *xformerr.EvalError
	problem     xformerr.ProblemDetail
}

// Success returns a success result for the spec that produced msg.
func Success(msg message.Message, specID, specVersion string) Result {
	return Result{kind: KindSuccess, msg: msg, specID: specID, specVersion: specVersion}
}

// Failure returns an error result whose message is a problem+json response
// with the problem's status.
func Failure(err *xformerr.EvalError, problem xformerr.ProblemDetail, specVersion string) Result {
	resp := message.New(
		message.WithBody(message.NewBody(problem.Marshal(), message.MediaTypeProblemJSON)),
		message.WithHeader("content-type", message.MediaTypeProblemJSON),
		message.WithStatus(problem.Status),
	)
	return Result{
		kind:        KindError,
		msg:         resp,
		specID:      err.SpecID,
		specVersion: specVersion,
		err:         err,
		problem:     problem,
	}
}

// Passthrough returns the no-match result carrying the original message.
func Passthrough(original message.Message) Result {
	return Result{kind: KindPassthrough, msg: original}
}

// Kind returns the active variant.
func (r Result) Kind() ResultKind { return r.kind }

// IsSuccess reports whether the result is a success.
func (r Result) IsSuccess() bool { return r.kind == KindSuccess }

// IsError reports whether the result is an error.
func (r Result) IsError() bool { return r.kind == KindError }

// IsPassthrough reports whether no entry matched.
func (r Result) IsPassthrough() bool { return r.kind == KindPassthrough }

// Message returns the message to forward: the transformed message for a
// success, the error response for an error, the original for passthrough.
func (r Result) Message() message.Message { return r.msg }

// SpecID returns the id of the matched spec, if any.
func (r Result) SpecID() string { return r.specID }

// SpecVersion returns the version of the matched spec, if any.
func (r Result) SpecVersion() string { return r.specVersion }

// Err returns the evaluation error of an error result.
func (r Result) Err() *xformerr.EvalError { return r.err }

// Problem returns the problem document of an error result.
func (r Result) Problem() xformerr.ProblemDetail { return r.problem }

// StatusCode returns the HTTP status of an error result, or 0.
func (r Result) StatusCode() int {
	if r.kind != KindError {
		return 0
	}
	return r.problem.Status
}

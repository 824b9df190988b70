package xformerr

import (
	"encoding/json"
	"net/http"
)

// ProblemTitle is the RFC 9457 title used for transform failures.
const ProblemTitle = "Transform Failed"

// ProblemDetail is an RFC 9457 application/problem+json document.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// NewProblem builds a problem document for an evaluation error.
func NewProblem(err *EvalError, status int, instance string) ProblemDetail {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return ProblemDetail{
		Type:     err.URN(),
		Title:    ProblemTitle,
		Status:   status,
		Detail:   err.Detail(),
		Instance: instance,
	}
}

// Marshal serializes the problem document.
func (p ProblemDetail) Marshal() []byte {
	// A struct of strings and an int cannot fail to marshal.
	data, _ := json.Marshal(p)
	return data
}

package proxy

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/msgxform/internal/util"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// Problem types written by the proxy itself.
const (
	URNUpstreamUnavailable = "urn:message-xform:error:upstream-unavailable"
	URNUpstreamTimeout     = "urn:message-xform:error:upstream-timeout"
	URNBodyTooLarge        = "urn:message-xform:error:body-too-large"
)

// Sentinel errors for proxy operations.
var (
	ErrBodyTooLarge    = errors.New("message body exceeds the proxy limit")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

const problemContentType = "application/problem+json"

// classify maps a proxy failure to its problem document and a metric
// label.
func classify(err error, instance string) (xformerr.ProblemDetail, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return xformerr.ProblemDetail{
			Type:     URNBodyTooLarge,
			Title:    "Payload Too Large",
			Status:   http.StatusRequestEntityTooLarge,
			Detail:   err.Error(),
			Instance: instance,
		}, "body_too_large"
	case errors.Is(err, util.ErrCircuitOpen),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return xformerr.ProblemDetail{
			Type:     URNUpstreamUnavailable,
			Title:    "Service Unavailable",
			Status:   http.StatusServiceUnavailable,
			Detail:   "upstream circuit breaker is open",
			Instance: instance,
		}, "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUpstreamTimeout):
		return xformerr.ProblemDetail{
			Type:     URNUpstreamTimeout,
			Title:    "Gateway Timeout",
			Status:   http.StatusGatewayTimeout,
			Detail:   "upstream did not answer in time",
			Instance: instance,
		}, "timeout"
	default:
		return xformerr.ProblemDetail{
			Type:     URNUpstreamUnavailable,
			Title:    "Bad Gateway",
			Status:   http.StatusBadGateway,
			Detail:   "failed to reach upstream",
			Instance: instance,
		}, "bad_gateway"
	}
}

func writeProblem(w http.ResponseWriter, p xformerr.ProblemDetail) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(p.Marshal())
}

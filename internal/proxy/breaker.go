package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/util"
)

// BreakerStateFunc is called when the breaker changes state, with
// 0=closed, 1=half-open, 2=open.
type BreakerStateFunc func(name string, state int)

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	// Threshold is the number of requests in a window before the failure
	// ratio is considered. The breaker trips at a ratio of 0.5.
	Threshold int
	// Timeout is how long the breaker stays open, and the counting window
	// while closed.
	Timeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests int
}

// breakerTransport runs every upstream round trip through a gobreaker.
type breakerTransport struct {
	next    http.RoundTripper
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  observability.Logger
	onState BreakerStateFunc
}

func newBreakerTransport(
	name string,
	next http.RoundTripper,
	cfg BreakerConfig,
	logger observability.Logger,
	onState BreakerStateFunc,
) *breakerTransport {
	bt := &breakerTransport{next: next, name: name, logger: logger, onState: onState}

	threshold := safeIntToUint32(cfg.Threshold)
	bt.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(cfg.HalfOpenRequests),
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < threshold {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: bt.stateChanged,
	})
	return bt
}

func (bt *breakerTransport) stateChanged(name string, from, to gobreaker.State) {
	bt.logger.Info("upstream circuit breaker state change",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	_, span := proxyTracer.Start(context.Background(), "proxy.circuit_breaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()

	if bt.onState != nil {
		bt.onState(name, int(to))
	}
}

// RoundTrip implements http.RoundTripper. A 5xx answer counts as a breaker
// failure but is still returned to the caller.
func (bt *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := bt.cb.Execute(func() (any, error) {
		var rtErr error
		resp, rtErr = bt.next.RoundTrip(req)
		if rtErr != nil {
			return nil, util.NewUpstreamError(req.URL.Host, rtErr)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, util.NewServerError(req.URL.Host, resp.StatusCode)
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", util.ErrCircuitOpen, bt.name)
	}
	var ue *util.UpstreamError
	if errors.As(err, &ue) && ue.Cause == nil {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// State returns the current breaker state.
func (bt *breakerTransport) State() gobreaker.State {
	return bt.cb.State()
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

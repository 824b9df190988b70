package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/msgxform/internal/budget"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/profile"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// Transform selects the profile entry for msg and applies its spec. tc is
// the expression context; nil derives one from msg. Evaluation failures
// never escape: they become a Success carrying msg in PASS_THROUGH mode or
// an Error result in DENY mode.
func (e *Engine) Transform(
	ctx context.Context,
	msg message.Message,
	dir message.Direction,
	tc *message.TransformContext,
) Result {
	snap := e.current.Load()
	if tc == nil {
		tc = message.NewTransformContext(msg, nil)
	}

	body, bodyErr := msg.Body().JSON()
	q := profile.Query{
		Direction:   dir,
		Path:        msg.Path(),
		Method:      msg.Method(),
		ContentType: msg.ContentType(),
		Body:        body,
		BodyOK:      bodyErr == nil && !msg.Body().IsEmpty(),
		Context:     tc,
	}
	if dir == message.Response {
		q.Status, q.HasStatus = msg.Status()
	}

	entry := e.matcher.Best(ctx, snap.profile, q)
	if entry == nil {
		e.metrics.recordTransform(dir.String(), resultPassthrough)
		return Passthrough(msg)
	}

	s := entry.Spec
	e.notifier.profileMatched(ProfileMatchedEvent{
		ProfileID:   snap.profile.ID,
		SpecID:      s.ID,
		SpecVersion: s.Version,
		Path:        msg.Path(),
		Specificity: entry.Specificity(),
	})

	ctx, span := engineTracer.Start(ctx, "engine.transform",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("transform.direction", dir.String()),
			attribute.String("transform.spec_id", s.ID),
			attribute.String("transform.spec_version", s.Version),
			attribute.String("transform.path_pattern", entry.PathPattern),
		),
	)
	defer span.End()

	logger := e.logger.WithContext(ctx).With(
		observability.String("spec_id", s.ID),
		observability.String("spec_version", s.Version),
		observability.String("direction", dir.String()),
	)

	start := time.Now()
	e.notifier.transformStarted(TransformStartedEvent{SpecID: s.ID, SpecVersion: s.Version, Direction: dir})

	out, err := e.apply(ctx, s, msg, dir, tc, body, bodyErr)
	elapsed := time.Since(start)
	e.metrics.transformDuration.WithLabelValues(dir.String()).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.fail(logger, snap, s, msg, dir, elapsed, err)
	}

	if observability.DebugEnabled(logger) {
		logger.Debug("transform applied",
			observability.Duration("duration", elapsed),
			observability.Any("input", spec.Redact(body, s.Sensitive)),
		)
	}
	e.notifier.transformCompleted(TransformCompletedEvent{
		SpecID: s.ID, SpecVersion: s.Version, Direction: dir, Duration: elapsed,
	})
	e.metrics.recordTransform(dir.String(), resultSuccess)
	return Success(out, s.ID, s.Version)
}

// apply runs the body expression and the rewrite rules.
func (e *Engine) apply(
	ctx context.Context,
	s *spec.TransformSpec,
	msg message.Message,
	dir message.Direction,
	tc *message.TransformContext,
	body any,
	bodyErr error,
) (message.Message, error) {
	if bodyErr != nil {
		return msg, xformerr.WrapEvalError(xformerr.ExpressionEval,
			"message body is not valid JSON", s.ID, budget.NoStep, bodyErr)
	}

	transformed, err := e.evaluateBody(ctx, s, dir, body, tc)
	if err != nil {
		return msg, err
	}

	out, err := withJSONBody(msg, transformed)
	if err != nil {
		return msg, xformerr.WrapEvalError(xformerr.ExpressionEval,
			"transformed body is not serializable", s.ID, budget.NoStep, err)
	}

	if s.Headers != nil {
		headers, err := e.rewriteHeaders(ctx, s, out.Headers(), transformed)
		if err != nil {
			return msg, err
		}
		out = out.WithHeaders(headers)
	}

	if s.Status != nil && dir == message.Response {
		if code, ok := out.Status(); ok {
			if next := e.rewriteStatus(ctx, s, code, transformed); next != code {
				out = out.WithStatus(next)
			}
		}
	}

	if s.URL != nil && dir == message.Request {
		if out, err = e.rewriteURL(ctx, s, out, body, tc); err != nil {
			return msg, err
		}
	}
	return out, nil
}

// evaluateBody validates the input when strict and runs the expression or
// apply chain, feeding each step's output to the next.
func (e *Engine) evaluateBody(
	ctx context.Context,
	s *spec.TransformSpec,
	dir message.Direction,
	input any,
	tc *message.TransformContext,
) (any, error) {
	if e.schemaValidation == SchemaStrict {
		if err := budget.ValidateInput(s.InputSchema, input, s.ID); err != nil {
			return nil, err
		}
	}

	if len(s.Apply) == 0 {
		return e.evaluator.Evaluate(ctx, s.ExpressionFor(dir), input, tc, s.ID, budget.NoStep)
	}

	current := input
	for i, step := range s.Apply {
		next, err := e.evaluator.Evaluate(ctx, step.Expr, current, tc, s.ID, i)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// withJSONBody replaces the body with the encoded value, keeping the
// original media type. A nil value yields the empty body.
func withJSONBody(msg message.Message, v any) (message.Message, error) {
	if v == nil {
		return msg.WithBody(message.NewBody(nil, string(msg.Body().MediaType()))), nil
	}
	data, err := message.EncodeJSON(v)
	if err != nil {
		return msg, err
	}
	mediaType := msg.Body().MediaType()
	if mediaType == "" {
		mediaType = message.MediaTypeJSON
	}
	return msg.WithBody(message.NewBody(data, string(mediaType))), nil
}

// fail maps an evaluation error through the active error mode.
func (e *Engine) fail(
	logger observability.Logger,
	snap *snapshot,
	s *spec.TransformSpec,
	msg message.Message,
	dir message.Direction,
	elapsed time.Duration,
	err error,
) Result {
	ee, ok := xformerr.AsEvalError(err)
	if !ok {
		ee = xformerr.WrapEvalError(xformerr.ExpressionEval, "transform failed", s.ID, budget.NoStep, err)
	}

	e.notifier.transformFailed(TransformFailedEvent{
		SpecID: s.ID, SpecVersion: s.Version, Direction: dir, Duration: elapsed, Err: ee,
	})
	e.metrics.recordEvalError(dir.String(), ee.Kind.String())

	if snap.errorMode == PassThrough {
		logger.Warn("transform failed, passing original message through",
			observability.String("error_kind", ee.Kind.String()),
			observability.Error(ee),
		)
		e.metrics.recordTransform(dir.String(), resultSuccess)
		return Success(msg, s.ID, s.Version)
	}

	logger.Warn("transform failed, denying message",
		observability.String("error_kind", ee.Kind.String()),
		observability.Error(ee),
	)
	e.metrics.recordTransform(dir.String(), resultError)
	problem := xformerr.NewProblem(ee, e.denyStatus[ee.Kind], msg.Path())
	return Failure(ee, problem, s.Version)
}

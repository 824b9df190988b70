package engine

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/budget"
	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// rewriteHeaders applies remove, rename, static add and dynamic add in that
// order. Dynamic values see the transformed body and no context; a nil
// result leaves the header untouched.
func (e *Engine) rewriteHeaders(
	ctx context.Context,
	s *spec.TransformSpec,
	h message.Headers,
	transformed any,
) (message.Headers, error) {
	hs := s.Headers
	out := h.Clone()

	for _, name := range out.Names() {
		if slices.ContainsFunc(hs.Remove, func(g spec.Glob) bool { return g.Match(name) }) {
			out.Del(name)
		}
	}

	for _, r := range hs.Rename {
		if !out.Has(r.From) {
			continue
		}
		values := out.Values(r.From)
		out.Del(r.From)
		out.Set(r.To, values...)
	}

	for _, add := range hs.Add {
		out.Set(add.Name, add.Value)
	}

	for _, add := range hs.AddDynamic {
		v, err := e.evaluator.Evaluate(ctx, add.Expr, transformed, message.EmptyContext(), s.ID, budget.NoStep)
		if err != nil {
			return message.Headers{}, err
		}
		text, ok := expr.Stringify(v)
		if !ok {
			continue
		}
		out.Set(add.Name, text)
	}
	return out, nil
}

// rewriteStatus returns the status after the status rule. A failing or falsy
// predicate keeps the current status.
func (e *Engine) rewriteStatus(ctx context.Context, s *spec.TransformSpec, current int, transformed any) int {
	st := s.Status
	if st.When == nil {
		return st.Set
	}
	v, err := e.evaluator.Evaluate(ctx, st.When, transformed, message.EmptyContext(), s.ID, budget.NoStep)
	if err != nil {
		e.logger.Warn("status predicate failed, keeping original status",
			observability.String("spec_id", s.ID),
			observability.Int("status", current),
			observability.Error(err),
		)
		return current
	}
	if !expr.Truthy(v) {
		return current
	}
	return st.Set
}

// rewriteURL applies the path, query and method rules to a request.
// Expressions see the original body and the request context.
func (e *Engine) rewriteURL(
	ctx context.Context,
	s *spec.TransformSpec,
	msg message.Message,
	original any,
	tc *message.TransformContext,
) (message.Message, error) {
	u := s.URL

	if u.Path != nil {
		v, err := e.evaluator.Evaluate(ctx, u.Path, original, tc, s.ID, budget.NoStep)
		if err != nil {
			return msg, err
		}
		path, ok := v.(string)
		if !ok {
			return msg, xformerr.NewEvalError(xformerr.ExpressionEval,
				"url.path.expr must return a non-null string", s.ID)
		}
		msg = msg.WithPath(encodePath(path))
	}

	if u.HasQueryOps() {
		msg = msg.WithQuery(e.rewriteQuery(ctx, s, msg.Query(), original, tc))
	}

	if u.Method != "" && e.methodApplies(ctx, s, original, tc) {
		msg = msg.WithMethod(u.Method)
	}
	return msg, nil
}

func (e *Engine) methodApplies(ctx context.Context, s *spec.TransformSpec, original any, tc *message.TransformContext) bool {
	if s.URL.MethodWhen == nil {
		return true
	}
	v, err := e.evaluator.Evaluate(ctx, s.URL.MethodWhen, original, tc, s.ID, budget.NoStep)
	if err != nil {
		e.logger.Warn("method predicate failed, keeping original method",
			observability.String("spec_id", s.ID),
			observability.Error(err),
		)
		return false
	}
	return expr.Truthy(v)
}

type queryParam struct {
	key   string
	value string
}

func (e *Engine) rewriteQuery(
	ctx context.Context,
	s *spec.TransformSpec,
	raw string,
	original any,
	tc *message.TransformContext,
) string {
	u := s.URL
	params := parseQuery(raw)

	params = slices.DeleteFunc(params, func(p queryParam) bool {
		return slices.ContainsFunc(u.QueryRemove, func(g spec.Glob) bool { return g.Match(p.key) })
	})

	for _, add := range u.QueryAdd {
		params = setParam(params, add.Name, add.Value)
	}

	for _, add := range u.QueryAddDynamic {
		v, err := e.evaluator.Evaluate(ctx, add.Expr, original, tc, s.ID, budget.NoStep)
		if err != nil {
			e.logger.Warn("dynamic query parameter skipped",
				observability.String("spec_id", s.ID),
				observability.String("param", add.Name),
				observability.Error(err),
			)
			continue
		}
		text, ok := expr.Stringify(v)
		if !ok {
			continue
		}
		params = setParam(params, add.Name, text)
	}

	return encodeQuery(params)
}

// parseQuery splits a raw query into decoded pairs, keeping order and
// duplicates. Undecodable parts are kept verbatim.
func parseQuery(raw string) []queryParam {
	if raw == "" {
		return nil
	}
	var params []queryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		params = append(params, queryParam{key: unescape(k), value: unescape(v)})
	}
	return params
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// setParam replaces every value of key with a single value at the position
// of the first occurrence, or appends it.
func setParam(params []queryParam, key, value string) []queryParam {
	idx := slices.IndexFunc(params, func(p queryParam) bool { return p.key == key })
	if idx < 0 {
		return append(params, queryParam{key: key, value: value})
	}
	out := make([]queryParam, 0, len(params))
	for i, p := range params {
		switch {
		case p.key != key:
			out = append(out, p)
		case i == idx:
			out = append(out, queryParam{key: key, value: value})
		}
	}
	return out
}

func encodeQuery(params []queryParam) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = escape(p.key) + "=" + escape(p.value)
	}
	return strings.Join(parts, "&")
}

// escape form-encodes s with spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// encodePath escapes each path segment, keeping the separators.
func encodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = escape(seg)
	}
	return strings.Join(segments, "/")
}

package message

import (
	"net/http"
	"net/url"
)

// TransformContext is the read-only variable bag visible to expressions.
// Adapters build a fresh one per message; the engine never mutates it.
type TransformContext struct {
	headers    map[string]string
	headersAll map[string][]string
	status     *int
	query      map[string]string
	cookies    map[string]string
	session    map[string]any
}

// EmptyContext returns a context with no variables. Header, status and URL
// sub-expressions evaluate against it.
func EmptyContext() *TransformContext {
	return &TransformContext{}
}

// NewTransformContext derives a context from a message. When cookies is nil
// they are parsed from the Cookie header.
func NewTransformContext(msg Message, cookies map[string]string) *TransformContext {
	tc := &TransformContext{
		headers:    msg.headers.First(),
		headersAll: msg.headers.All(),
		query:      ParseQueryFirst(msg.query),
		session:    DeepCopyMap(msg.session),
	}
	if code, ok := msg.Status(); ok {
		tc.status = &code
	}
	if cookies == nil {
		tc.cookies = ParseCookies(msg.headers)
	} else {
		tc.cookies = make(map[string]string, len(cookies))
		for k, v := range cookies {
			tc.cookies[k] = v
		}
	}
	return tc
}

// Status returns the status code and whether one is present.
func (c *TransformContext) Status() (int, bool) {
	if c == nil || c.status == nil {
		return 0, false
	}
	return *c.status, true
}

// Header returns the first value of a header.
func (c *TransformContext) Header(name string) string {
	if c == nil {
		return ""
	}
	return c.headers[name]
}

// QueryParam returns the first value of a query parameter.
func (c *TransformContext) QueryParam(name string) string {
	if c == nil {
		return ""
	}
	return c.query[name]
}

// Cookie returns a cookie value.
func (c *TransformContext) Cookie(name string) string {
	if c == nil {
		return ""
	}
	return c.cookies[name]
}

// Vars returns a fresh copy of the expression variables: headers,
// headers_all, status, queryParams, cookies and session. Missing maps are
// returned empty, a missing status is nil.
func (c *TransformContext) Vars() map[string]any {
	if c == nil {
		c = EmptyContext()
	}
	headers := make(map[string]any, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	headersAll := make(map[string]any, len(c.headersAll))
	for k, vs := range c.headersAll {
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		headersAll[k] = list
	}
	query := make(map[string]any, len(c.query))
	for k, v := range c.query {
		query[k] = v
	}
	cookies := make(map[string]any, len(c.cookies))
	for k, v := range c.cookies {
		cookies[k] = v
	}
	session := DeepCopyMap(c.session)
	if session == nil {
		session = map[string]any{}
	}
	var status any
	if c.status != nil {
		status = int64(*c.status)
	}
	return map[string]any{
		"headers":     headers,
		"headers_all": headersAll,
		"status":      status,
		"queryParams": query,
		"cookies":     cookies,
		"session":     session,
	}
}

// ParseQueryFirst parses a raw query string keeping the first value of each
// parameter. Malformed pairs are skipped.
func ParseQueryFirst(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	values, _ := url.ParseQuery(raw)
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// ParseCookies extracts cookies from the Cookie header.
func ParseCookies(h Headers) map[string]string {
	out := make(map[string]string)
	raw := h.Values("cookie")
	if len(raw) == 0 {
		return out
	}
	req := http.Request{Header: http.Header{"Cookie": raw}}
	for _, c := range req.Cookies() {
		if _, seen := out[c.Name]; !seen {
			out[c.Name] = c.Value
		}
	}
	return out
}

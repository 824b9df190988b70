package message

import (
	"maps"
)

// Message is an immutable HTTP-agnostic envelope.
type Message struct {
	body      Body
	headers   Headers
	status    int
	hasStatus bool
	path      string
	method    string
	query     string
	session   map[string]any
}

// Option configures a Message under construction.
type Option func(*Message)

// WithBody sets the body.
func WithBody(b Body) Option {
	return func(m *Message) {
		m.body = b
	}
}

// WithHeaders replaces all headers with a copy of h.
func WithHeaders(h Headers) Option {
	return func(m *Message) {
		m.headers = h.Clone()
	}
}

// WithHeader appends a header value.
func WithHeader(name, value string) Option {
	return func(m *Message) {
		m.headers.Add(name, value)
	}
}

// WithStatus sets the status code. Requests normally have none.
func WithStatus(code int) Option {
	return func(m *Message) {
		m.status = code
		m.hasStatus = true
	}
}

// WithPath sets the request path.
func WithPath(path string) Option {
	return func(m *Message) {
		m.path = path
	}
}

// WithMethod sets the request method.
func WithMethod(method string) Option {
	return func(m *Message) {
		m.method = method
	}
}

// WithQuery sets the raw query string, without the leading '?'.
func WithQuery(query string) Option {
	return func(m *Message) {
		m.query = query
	}
}

// WithSession sets the session attribute bag. The map is deep-copied.
func WithSession(session map[string]any) Option {
	return func(m *Message) {
		m.session = DeepCopyMap(session)
	}
}

// New builds a message from options.
func New(opts ...Option) Message {
	var m Message
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Body returns the body.
func (m Message) Body() Body { return m.body }

// Headers returns a copy of the headers.
func (m Message) Headers() Headers { return m.headers.Clone() }

// Header returns the first value of a header.
func (m Message) Header(name string) string { return m.headers.Get(name) }

// Status returns the status code and whether one is set.
func (m Message) Status() (int, bool) { return m.status, m.hasStatus }

// Path returns the request path.
func (m Message) Path() string { return m.path }

// Method returns the request method.
func (m Message) Method() string { return m.method }

// Query returns the raw query string.
func (m Message) Query() string { return m.query }

// Session returns a copy of the session attributes.
func (m Message) Session() map[string]any { return DeepCopyMap(m.session) }

// ContentType returns the body media type, falling back to the
// Content-Type header.
func (m Message) ContentType() MediaType {
	if mt := m.body.MediaType(); mt != "" {
		return mt
	}
	return MediaType(m.headers.Get("content-type"))
}

// WithBody returns a copy with a new body.
func (m Message) WithBody(b Body) Message {
	m.headers = m.headers.Clone()
	m.body = b
	return m
}

// WithHeaders returns a copy with the headers replaced.
func (m Message) WithHeaders(h Headers) Message {
	m.headers = h.Clone()
	return m
}

// WithStatus returns a copy with the status code set.
func (m Message) WithStatus(code int) Message {
	m.headers = m.headers.Clone()
	m.status = code
	m.hasStatus = true
	return m
}

// WithPath returns a copy with a new request path.
func (m Message) WithPath(path string) Message {
	m.headers = m.headers.Clone()
	m.path = path
	return m
}

// WithMethod returns a copy with a new request method.
func (m Message) WithMethod(method string) Message {
	m.headers = m.headers.Clone()
	m.method = method
	return m
}

// WithQuery returns a copy with a new raw query string.
func (m Message) WithQuery(query string) Message {
	m.headers = m.headers.Clone()
	m.query = query
	return m
}

// Equal reports whether two messages are identical field by field.
func (m Message) Equal(other Message) bool {
	return m.body.Equal(other.body) &&
		m.headers.Equal(other.headers) &&
		m.status == other.status &&
		m.hasStatus == other.hasStatus &&
		m.path == other.path &&
		m.method == other.method &&
		m.query == other.query &&
		maps.EqualFunc(m.session, other.session, func(a, b any) bool {
			return jsonEqual(a, b)
		})
}

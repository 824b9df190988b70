package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/msgxform/internal/engine"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// RequestIDHeader carries the request id to the upstream and back to the
// client.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodyBytes bounds request and response bodies held in memory.
const DefaultMaxBodyBytes int64 = 10 << 20

var proxyTracer = otel.Tracer("msgxform/proxy")

// Transformer transforms one message. *engine.Engine implements it.
type Transformer interface {
	Transform(ctx context.Context, msg message.Message, dir message.Direction, tc *message.TransformContext) engine.Result
}

// SessionSource derives session attributes from an inbound request. A nil
// map with a nil error means the request carries no session.
type SessionSource interface {
	Session(r *http.Request) (map[string]any, error)
}

// Proxy is an http.Handler that forwards to a single upstream, transforming
// both directions.
type Proxy struct {
	xf           Transformer
	upstream     *url.URL
	transport    http.RoundTripper
	breaker      *breakerTransport
	breakerCfg   *BreakerConfig
	sessions     SessionSource
	logger       observability.Logger
	metrics      *observability.Metrics
	timeout      time.Duration
	maxBodyBytes int64
	rp           *httputil.ReverseProxy
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport used for upstream round trips.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithCircuitBreaker guards the upstream with a circuit breaker.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(p *Proxy) {
		p.breakerCfg = &cfg
	}
}

// WithSession sets the session attribute source.
func WithSession(s SessionSource) Option {
	return func(p *Proxy) {
		p.sessions = s
	}
}

// WithMetrics records proxied requests and breaker state in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// WithTimeout bounds each upstream round trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		p.timeout = d
	}
}

// WithMaxBodyBytes bounds buffered bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Proxy) {
		p.maxBodyBytes = n
	}
}

// New creates a proxy that forwards to upstream.
func New(xf Transformer, upstream string, opts ...Option) (*Proxy, error) {
	if xf == nil {
		return nil, errors.New("proxy: transformer is required")
	}
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstream, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host are required", upstream)
	}

	p := &Proxy{
		xf:           xf,
		upstream:     target,
		transport:    http.DefaultTransport,
		logger:       observability.NopLogger(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}

	var rt http.RoundTripper = &timedTransport{next: p.transport}
	if p.breakerCfg != nil {
		p.breaker = newBreakerTransport(target.Host, rt, *p.breakerCfg, p.logger, p.breakerStateChanged)
		rt = p.breaker
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      rt,
		FlushInterval:  -1,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	sw.Header().Set(RequestIDHeader, requestID)

	ctx := observability.ContextWithRequestID(r.Context(), requestID)
	ctx, span := proxyTracer.Start(ctx, "proxy.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("request.id", requestID),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int("http.response.status_code", sw.status))
		span.End()
		if p.metrics != nil {
			p.metrics.RecordProxyRequest(r.Method, sw.status, time.Since(start))
		}
	}()

	r = r.WithContext(ctx)
	r.Header.Set(RequestIDHeader, requestID)

	body, err := readLimited(r.Body, p.maxBodyBytes)
	if err != nil {
		p.fail(sw, r, err)
		return
	}

	msg := p.requestMessage(r, body)
	result := p.xf.Transform(ctx, msg, message.Request, message.NewTransformContext(msg, nil))
	getProxyMetrics().transformsTotal.WithLabelValues(message.Request.String(), result.Kind().String()).Inc()
	if result.IsError() {
		span.SetStatus(codes.Error, "request transform denied")
		writeMessage(sw, result.Message())
		return
	}

	out := result.Message()
	outreq := r.Clone(withOriginal(ctx, msg))
	outreq.Method = out.Method()
	outreq.URL.Path = out.Path()
	outreq.URL.RawPath = ""
	outreq.URL.RawQuery = out.Query()
	outreq.Header = out.Headers().ToHTTP()
	outreq.Header.Set(RequestIDHeader, requestID)
	setBody(outreq.Header, out.Body().Bytes(), func(rc io.ReadCloser, n int64) {
		outreq.Body = rc
		outreq.ContentLength = n
		outreq.GetBody = nil
	})

	if p.timeout > 0 {
		tctx, cancel := context.WithTimeout(outreq.Context(), p.timeout)
		defer cancel()
		outreq = outreq.WithContext(tctx)
	}

	p.rp.ServeHTTP(sw, outreq)
}

// Handler returns the proxy as an http.Handler.
func (p *Proxy) Handler() http.Handler {
	return p
}

func (p *Proxy) requestMessage(r *http.Request, body []byte) message.Message {
	opts := []message.Option{
		message.WithHeaders(message.HeadersFromHTTP(r.Header)),
		message.WithPath(r.URL.Path),
		message.WithMethod(r.Method),
		message.WithQuery(r.URL.RawQuery),
		message.WithBody(message.NewBody(body, r.Header.Get("Content-Type"))),
	}
	if session := p.session(r); session != nil {
		opts = append(opts, message.WithSession(session))
	}
	return message.New(opts...)
}

// session resolves session attributes. A failure is logged and the request
// proceeds without a session.
func (p *Proxy) session(r *http.Request) map[string]any {
	if p.sessions == nil {
		return nil
	}
	s, err := p.sessions.Session(r)
	if err != nil {
		p.logger.WithContext(r.Context()).Warn("session attributes unavailable",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		return nil
	}
	return s
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.upstream)
	pr.SetXForwarded()
	// The transport negotiates compression itself so bodies stay readable.
	pr.Out.Header.Del("Accept-Encoding")
	observability.InjectTraceContext(pr.Out.Context(), pr.Out.Header)
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	ctx := resp.Request.Context()
	body, err := readLimited(resp.Body, p.maxBodyBytes)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("upstream response: %v", err)
	}

	original := originalFrom(ctx)
	opts := []message.Option{
		message.WithStatus(resp.StatusCode),
		message.WithHeaders(message.HeadersFromHTTP(resp.Header)),
		message.WithBody(message.NewBody(body, resp.Header.Get("Content-Type"))),
		message.WithPath(original.Path()),
		message.WithMethod(original.Method()),
		message.WithQuery(original.Query()),
	}
	if session := original.Session(); len(session) > 0 {
		opts = append(opts, message.WithSession(session))
	}
	msg := message.New(opts...)

	result := p.xf.Transform(ctx, msg, message.Response, message.NewTransformContext(msg, nil))
	getProxyMetrics().transformsTotal.WithLabelValues(message.Response.String(), result.Kind().String()).Inc()

	out := result.Message()
	if status, ok := out.Status(); ok {
		resp.StatusCode = status
		resp.Status = strconv.Itoa(status) + " " + http.StatusText(status)
	}
	resp.Header = out.Headers().ToHTTP()
	if id := observability.RequestIDFromContext(ctx); id != "" {
		resp.Header.Set(RequestIDHeader, id)
	}
	setBody(resp.Header, out.Body().Bytes(), func(rc io.ReadCloser, n int64) {
		resp.Body = rc
		resp.ContentLength = n
	})
	resp.TransferEncoding = nil
	resp.Uncompressed = false
	return nil
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	p.fail(w, r, err)
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	problem, errType := classify(err, r.URL.Path)
	getProxyMetrics().errorsTotal.WithLabelValues(errType).Inc()

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, errType)

	p.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("error_type", errType),
		observability.Error(err),
	)
	writeProblem(w, problem)
}

func (p *Proxy) breakerStateChanged(name string, state int) {
	if p.metrics != nil {
		p.metrics.SetCircuitBreakerState(name, state)
	}
}

// timedTransport records upstream round trip duration.
type timedTransport struct {
	next http.RoundTripper
}

func (t *timedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	getProxyMetrics().upstreamDuration.Observe(time.Since(start).Seconds())
	return resp, err
}

// statusWriter captures the status code written to the client.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Flush implements http.Flusher when the underlying writer does.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type originalKey struct{}

// withOriginal keeps the pre-transform request message so the response
// half can match profile entries on the client's path.
func withOriginal(ctx context.Context, msg message.Message) context.Context {
	return context.WithValue(ctx, originalKey{}, msg)
}

func originalFrom(ctx context.Context) message.Message {
	msg, _ := ctx.Value(originalKey{}).(message.Message)
	return msg
}

func writeMessage(w http.ResponseWriter, msg message.Message) {
	h := w.Header()
	for name, values := range msg.Headers().ToHTTP() {
		h[name] = values
	}
	body := msg.Body().Bytes()
	h.Set("Content-Length", strconv.Itoa(len(body)))
	status, ok := msg.Status()
	if !ok {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func setBody(h http.Header, body []byte, set func(io.ReadCloser, int64)) {
	h.Del("Transfer-Encoding")
	if len(body) == 0 {
		h.Del("Content-Length")
		set(http.NoBody, 0)
		return
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	set(io.NopCloser(bytes.NewReader(body)), int64(len(body)))
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil || r == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

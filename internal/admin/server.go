package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/msgxform/internal/engine"
	"github.com/vyrodovalexey/msgxform/internal/health"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// ginModeOnce guards gin.SetMode, which is not safe for concurrent use.
var ginModeOnce sync.Once

// Server timeouts.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// ReloadFunc performs a full reload and returns its error.
type ReloadFunc func(ctx context.Context) error

// Server is the admin HTTP server.
type Server struct {
	engine     *engine.Engine
	reload     ReloadFunc
	logger     observability.Logger
	metrics    *observability.Metrics
	health     *health.Handler
	limiter    *rate.Limiter
	router     *gin.Engine
	httpServer *http.Server
	mu         sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves m on /metrics and records admin request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealth registers the probe routes of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithReloadRateLimit bounds POST /admin/reload to rps with the given burst.
func WithReloadRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer creates the admin server. reload is invoked by
// POST /admin/reload.
func NewServer(eng *engine.Engine, reload ReloadFunc, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:  eng,
		reload:  reload,
		logger:  observability.NopLogger(),
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reload == nil {
		s.reload = func(context.Context) error { return errNoReload }
	}

	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the admin API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(s.metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.health != nil {
		s.health.RegisterRoutes(r)
	}

	admin := r.Group("/admin")
	admin.POST("/reload", s.rateLimit(), s.handleReload)
	admin.GET("/specs", s.handleSpecs)
	admin.GET("/specs/:key", s.handleSpec)
	admin.GET("/profile", s.handleProfile)
	return r
}

// ListenAndServe binds addr and serves until Shutdown. It returns once the
// listener is bound; serve errors are logged.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("admin server listening", observability.String("address", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", observability.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("stopping admin server")
	return srv.Shutdown(ctx)
}

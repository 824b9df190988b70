package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// Default timeout values for health checks.
const (
	DefaultReadinessProbeTimeout = 5 * time.Second
	DefaultLivenessProbeTimeout  = 10 * time.Second
)

// Probe statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// HealthCheck defines the interface for health checks.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// criticality is implemented by checks that can be marked non-critical.
type criticality interface {
	IsCritical() bool
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Uptime    string                  `json:"uptime,omitempty"`
	Version   string                  `json:"version,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Critical  bool      `json:"critical"`
	Duration  string    `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler handles health check requests.
type Handler struct {
	checks           []HealthCheck
	logger           observability.Logger
	mu               sync.RWMutex
	startTime        time.Time
	version          string
	readinessTimeout time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithVersion sets the version reported by /health.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) {
		h.version = version
	}
}

// WithReadinessTimeout bounds a readiness probe.
func WithReadinessTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		if timeout > 0 {
			h.readinessTimeout = timeout
		}
	}
}

// NewHandler creates a new health handler.
func NewHandler(logger observability.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &Handler{
		logger:           logger,
		startTime:        time.Now(),
		readinessTimeout: DefaultReadinessProbeTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck adds a health check.
func (h *Handler) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RemoveCheck removes a health check by name.
func (h *Handler) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, check := range h.checks {
		if check.Name() == name {
			h.checks = append(h.checks[:i], h.checks[i+1:]...)
			return
		}
	}
}

// LivenessHandler returns a handler for liveness probes.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		GetHealthMetrics().recordProbe("liveness")
		c.JSON(http.StatusOK, gin.H{
			"status":    StatusOK,
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler returns a handler for readiness probes.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		GetHealthMetrics().recordProbe("readiness")
		h.respond(c, h.readinessTimeout, false)
	}
}

// HealthHandler returns a handler for detailed health checks.
func (h *Handler) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		GetHealthMetrics().recordProbe("health")
		h.respond(c, DefaultLivenessProbeTimeout, true)
	}
}

func (h *Handler) respond(c *gin.Context, timeout time.Duration, detailed bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	status := h.Run(ctx)
	if detailed {
		status.Uptime = time.Since(h.startTime).Round(time.Second).String()
		status.Version = h.version
	}

	code := http.StatusOK
	if status.Status == StatusError {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Run executes every check concurrently and aggregates the result.
func (h *Handler) Run(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := &HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, check := range checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()

			critical := true
			if cc, ok := hc.(criticality); ok {
				critical = cc.IsCritical()
			}

			start := time.Now()
			err := hc.Check(ctx)
			duration := time.Since(start)

			result := &CheckResult{
				Status:    StatusOK,
				Critical:  critical,
				Duration:  duration.String(),
				Timestamp: time.Now().UTC(),
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[hc.Name()] = result
			if err == nil {
				return
			}

			result.Status = StatusError
			result.Error = err.Error()
			switch {
			case critical:
				status.Status = StatusError
			case status.Status == StatusOK:
				status.Status = StatusDegraded
			}

			h.logger.Warn("health check failed",
				observability.String("check", hc.Name()),
				observability.Bool("critical", critical),
				observability.Error(err),
				observability.Duration("duration", duration),
			)
		}(check)
	}

	wg.Wait()
	GetHealthMetrics().setOverall(status.Status != StatusError)
	return status
}

// RegisterRoutes registers health check routes on a gin router.
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthHandler())
	router.GET("/healthz", h.LivenessHandler())
	router.GET("/livez", h.LivenessHandler())
	router.GET("/readyz", h.ReadinessHandler())
	router.GET("/ready", h.ReadinessHandler())
}

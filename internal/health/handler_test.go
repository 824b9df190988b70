package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/msgxform/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h *Handler, path string) (int, HealthStatus) {
	t.Helper()

	router := gin.New()
	h.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec.Code, status
}

func TestHandler_Liveness(t *testing.T) {
	t.Parallel()

	h := NewHandler(observability.NopLogger())
	h.AddCheck(CustomHealthCheck("broken", func(context.Context) error { return errors.New("down") }))

	for _, path := range []string{"/healthz", "/livez"} {
		code, status := serve(t, h, path)
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, StatusOK, status.Status, path)
	}
}

func TestHandler_Readiness(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) error { return errors.New("down") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{name: "no checks", wantCode: http.StatusOK, wantStatus: StatusOK},
		{
			name:       "all passing",
			checks:     []HealthCheck{CustomHealthCheck("specs", passing), CustomHealthCheck("upstream", passing)},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "critical failing",
			checks:     []HealthCheck{CustomHealthCheck("specs", failing), CustomHealthCheck("upstream", passing)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusError,
		},
		{
			name: "non-critical failing",
			checks: []HealthCheck{
				CustomHealthCheck("specs", passing),
				CustomHealthCheck("broadcast", failing, WithCritical(false)),
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "critical wins over degraded",
			checks: []HealthCheck{
				CustomHealthCheck("specs", failing),
				CustomHealthCheck("broadcast", failing, WithCritical(false)),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler(nil)
			for _, c := range tt.checks {
				h.AddCheck(c)
			}

			for _, path := range []string{"/readyz", "/ready"} {
				code, status := serve(t, h, path)
				assert.Equal(t, tt.wantCode, code)
				assert.Equal(t, tt.wantStatus, status.Status)
				assert.Len(t, status.Checks, len(tt.checks))
			}
		})
	}
}

func TestHandler_HealthDetails(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, WithVersion("1.2.3"), WithReadinessTimeout(time.Second))
	h.AddCheck(CustomHealthCheck("specs", func(context.Context) error { return errors.New("no specs loaded") }))

	code, status := serve(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "1.2.3", status.Version)
	assert.NotEmpty(t, status.Uptime)
	require.Contains(t, status.Checks, "specs")
	assert.Equal(t, "no specs loaded", status.Checks["specs"].Error)
	assert.True(t, status.Checks["specs"].Critical)
}

func TestHandler_RemoveCheck(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil)
	h.AddCheck(CustomHealthCheck("a", func(context.Context) error { return errors.New("down") }))
	h.AddCheck(CustomHealthCheck("b", func(context.Context) error { return nil }))
	h.RemoveCheck("a")
	h.RemoveCheck("missing")

	status := h.Run(context.Background())
	assert.Equal(t, StatusOK, status.Status)
	assert.Len(t, status.Checks, 1)
}

func TestRedisHealthCheck(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisHealthCheck("broadcast", client, WithCritical(false))
	assert.Equal(t, "broadcast", check.Name())
	assert.Equal(t, DependencyTypeBroker, check.Type())
	assert.False(t, check.IsCritical())
	require.NoError(t, check.Check(context.Background()))

	mr.Close()
	assert.Error(t, check.Check(context.Background()))

	assert.Error(t, RedisHealthCheck("nil", nil).Check(context.Background()))
}

func TestHTTPHealthCheck(t *testing.T) {
	t.Parallel()

	var code atomic.Int32
	code.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	t.Cleanup(srv.Close)

	check := HTTPHealthCheck("upstream", srv.URL, time.Second)
	assert.NoError(t, check.Check(context.Background()))

	code.Store(http.StatusBadGateway)
	assert.ErrorContains(t, check.Check(context.Background()), "502")

	assert.Error(t, HTTPHealthCheck("bad", "http://[::1", time.Second).Check(context.Background()))
}

func TestCachedHealthCheck(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inner := CustomHealthCheck("upstream", func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithCritical(false))

	cached := NewCachedHealthCheck(inner, time.Hour)
	assert.Equal(t, "upstream", cached.Name())
	assert.False(t, cached.IsCritical())

	for i := 0; i < 3; i++ {
		require.NoError(t, cached.Check(context.Background()))
	}
	assert.Equal(t, int32(1), calls.Load())

	expiring := NewCachedHealthCheck(inner, 0)
	require.NoError(t, expiring.Check(context.Background()))
	require.NoError(t, expiring.Check(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHealthMetrics_Register(t *testing.T) {
	t.Parallel()

	m := GetHealthMetrics()
	assert.Same(t, m, GetHealthMetrics())
	m.Init()

	registry := prometheus.NewRegistry()
	require.NotPanics(t, func() { m.MustRegister(registry) })

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "msgxform_health_probes_total")
	assert.Contains(t, names, "msgxform_health_check_status")
}

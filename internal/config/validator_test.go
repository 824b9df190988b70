package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/msgxform/internal/util"
)

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*AppConfig)
		wantPath string
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "lowercase deny", mutate: func(c *AppConfig) { c.Engine.ErrorMode = "deny" }},
		{name: "hyphenated pass through", mutate: func(c *AppConfig) { c.Engine.ErrorMode = "pass-through" }},
		{name: "empty specs dir", mutate: func(c *AppConfig) { c.Engine.SpecsDir = " " }, wantPath: "engine.specsDir"},
		{name: "bad error mode", mutate: func(c *AppConfig) { c.Engine.ErrorMode = "IGNORE" }, wantPath: "engine.errorMode"},
		{
			name:     "bad schema validation",
			mutate:   func(c *AppConfig) { c.Engine.SchemaValidation = "loose" },
			wantPath: "engine.schemaValidation",
		},
		{
			name:     "success deny status",
			mutate:   func(c *AppConfig) { c.Engine.DenyStatus.ExpressionEval = 200 },
			wantPath: "engine.denyStatus.expressionEval",
		},
		{
			name:     "negative budget",
			mutate:   func(c *AppConfig) { c.Engine.Budget.MaxEval = -1 },
			wantPath: "engine.budget.maxEval",
		},
		{
			name:     "zero reload rate",
			mutate:   func(c *AppConfig) { c.Admin.ReloadRateLimit.RequestsPerSecond = 0 },
			wantPath: "admin.reloadRateLimit.requestsPerSecond",
		},
		{
			name:     "proxy without upstream",
			mutate:   func(c *AppConfig) { c.Proxy.Enabled = true },
			wantPath: "proxy.upstream",
		},
		{
			name: "proxy relative upstream",
			mutate: func(c *AppConfig) {
				c.Proxy.Enabled = true
				c.Proxy.Upstream = "/backend"
			},
			wantPath: "proxy.upstream",
		},
		{
			name: "breaker zero threshold",
			mutate: func(c *AppConfig) {
				c.Proxy.Enabled = true
				c.Proxy.Upstream = "http://localhost:8081"
				c.Proxy.CircuitBreaker.Threshold = 0
			},
			wantPath: "proxy.circuitBreaker.threshold",
		},
		{
			name:     "jwt without jwks",
			mutate:   func(c *AppConfig) { c.Session.JWT.Enabled = true },
			wantPath: "session.jwt.jwksFile",
		},
		{
			name: "jwt bad header",
			mutate: func(c *AppConfig) {
				c.Session.JWT.Enabled = true
				c.Session.JWT.JWKSFile = "jwks.json"
				c.Session.JWT.Header = "Bad Header"
			},
			wantPath: "session.jwt.header",
		},
		{
			name:     "broadcast without address",
			mutate:   func(c *AppConfig) { c.Broadcast.Enabled = true },
			wantPath: "broadcast.address",
		},
		{
			name:     "bad log level",
			mutate:   func(c *AppConfig) { c.Observability.Logging.Level = "trace" },
			wantPath: "observability.logging.level",
		},
		{
			name:     "sampling rate above one",
			mutate:   func(c *AppConfig) { c.Observability.Tracing.SamplingRate = 1.5 },
			wantPath: "observability.tracing.samplingRate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantPath == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			paths := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				paths = append(paths, ve.Path)
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()
	assert.EqualError(t, ValidateConfig(nil), "configuration is nil")
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.False(t, ValidationErrors{}.HasErrors())

	errs := ValidationErrors{
		{Path: "engine.errorMode", Message: "bad"},
		{Path: "admin.address", Message: "required"},
	}
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "2 validation errors:\n  1. engine.errorMode: bad\n  2. admin.address: required\n", errs.Error())
}

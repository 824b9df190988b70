package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/msgxform/internal/util"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msgxform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, DefaultSpecsDir), cfg.Engine.SpecsDir)
	assert.Empty(t, cfg.Engine.Profile)
	assert.Equal(t, DefaultErrorMode, cfg.Engine.ErrorMode)
	assert.Equal(t, DefaultMaxEval, cfg.Engine.Budget.MaxEval.Duration())
	assert.Equal(t, DefaultMaxOutputBytes, cfg.Engine.Budget.MaxOutputBytes)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, DefaultAdminAddress, cfg.Admin.Address)
	assert.False(t, cfg.Proxy.Enabled)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
engine:
  specsDir: transforms
  profile: profiles/default.yaml
  errorMode: DENY
  schemaValidation: strict
  denyStatus:
    expressionEval: 422
  budget:
    maxEval: 20ms
    maxOutputBytes: 4096
watch:
  enabled: false
proxy:
  enabled: true
  upstream: http://localhost:8081
  timeout: 5s
session:
  jwt:
    enabled: true
    jwksFile: /etc/msgxform/jwks.json
observability:
  logging:
    level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "transforms"), cfg.Engine.SpecsDir)
	assert.Equal(t, filepath.Join(dir, "profiles", "default.yaml"), cfg.Engine.Profile)
	assert.Equal(t, "DENY", cfg.Engine.ErrorMode)
	assert.Equal(t, 422, cfg.Engine.DenyStatus.ExpressionEval)
	assert.Zero(t, cfg.Engine.DenyStatus.EvalBudgetExceeded)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.Budget.MaxEval.Duration())
	assert.Equal(t, 4096, cfg.Engine.Budget.MaxOutputBytes)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce.Duration())
	assert.Equal(t, 5*time.Second, cfg.Proxy.Timeout.Duration())
	assert.Equal(t, DefaultProxyListen, cfg.Proxy.Listen)
	assert.Equal(t, "/etc/msgxform/jwks.json", cfg.Session.JWT.JWKSFile)
	assert.Equal(t, DefaultSessionHeader, cfg.Session.JWT.Header)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "engine:\n  specDir: x\n"},
		{name: "bad duration", content: "engine:\n  budget:\n    maxEval: soon\n"},
		{name: "malformed", content: "engine: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigFromReader_EnvSubstitution(t *testing.T) {
	t.Setenv("MSGXFORM_TEST_UPSTREAM", "http://upstream:9000")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
engine:
  specsDir: ${MSGXFORM_TEST_SPECS:-./specs}
proxy:
  upstream: ${MSGXFORM_TEST_UPSTREAM}
broadcast:
  password: "p$$ss"
`))
	require.NoError(t, err)
	assert.Equal(t, "./specs", cfg.Engine.SpecsDir)
	assert.Equal(t, "http://upstream:9000", cfg.Proxy.Upstream)
	assert.Equal(t, "p$ss", cfg.Broadcast.Password)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("MSGXFORM_TEST_SET", "value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set", input: "a: ${MSGXFORM_TEST_SET}", want: "a: value"},
		{name: "unset", input: "a: ${MSGXFORM_TEST_UNSET}", want: "a: "},
		{name: "default", input: "a: ${MSGXFORM_TEST_UNSET:-fallback}", want: "a: fallback"},
		{name: "set ignores default", input: "a: ${MSGXFORM_TEST_SET:-fallback}", want: "a: value"},
		{name: "escaped", input: "a: $${MSGXFORM_TEST_SET}", want: "a: ${MSGXFORM_TEST_SET}"},
		{name: "plain", input: "a: b", want: "a: b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}

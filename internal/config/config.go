package config

import (
	"time"
)

// Default values.
const (
	DefaultSpecsDir           = "specs"
	DefaultErrorMode          = "PASS_THROUGH"
	DefaultSchemaValidation   = "lenient"
	DefaultMaxEval            = 50 * time.Millisecond
	DefaultMaxOutputBytes     = 1 << 20
	DefaultWatchDebounce      = 250 * time.Millisecond
	DefaultAdminAddress       = ":9090"
	DefaultReloadRPS          = 1.0
	DefaultReloadBurst        = 3
	DefaultProxyListen        = ":8080"
	DefaultProxyTimeout       = 30 * time.Second
	DefaultBreakerThreshold   = 5
	DefaultBreakerTimeout     = 30 * time.Second
	DefaultBreakerHalfOpen    = 1
	DefaultSessionHeader      = "Authorization"
	DefaultBroadcastChannel   = "msgxform:reload"
	DefaultMetricsNamespace   = "msgxform"
	DefaultTracingServiceName = "msgxform"
)

// AppConfig is the service configuration file.
type AppConfig struct {
	Engine        EngineConfig        `yaml:"engine" json:"engine"`
	Watch         WatchConfig         `yaml:"watch" json:"watch"`
	Admin         AdminConfig         `yaml:"admin" json:"admin"`
	Proxy         ProxyConfig         `yaml:"proxy" json:"proxy"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	Broadcast     BroadcastConfig     `yaml:"broadcast" json:"broadcast"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// EngineConfig configures the transform engine.
type EngineConfig struct {
	// SpecsDir holds the spec files, scanned non-recursively.
	SpecsDir string `yaml:"specsDir" json:"specsDir"`
	// Profile is the profile file. Empty runs without a profile.
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty"`
	// ErrorMode is PASS_THROUGH or DENY.
	ErrorMode string `yaml:"errorMode" json:"errorMode"`
	// SchemaValidation is strict or lenient.
	SchemaValidation string           `yaml:"schemaValidation" json:"schemaValidation"`
	DenyStatus       DenyStatusConfig `yaml:"denyStatus,omitempty" json:"denyStatus,omitempty"`
	Budget           BudgetConfig     `yaml:"budget" json:"budget"`
}

// DenyStatusConfig overrides DENY response statuses per error kind. Zero
// keeps the default.
type DenyStatusConfig struct {
	ExpressionEval       int `yaml:"expressionEval,omitempty" json:"expressionEval,omitempty"`
	EvalBudgetExceeded   int `yaml:"evalBudgetExceeded,omitempty" json:"evalBudgetExceeded,omitempty"`
	InputSchemaViolation int `yaml:"inputSchemaViolation,omitempty" json:"inputSchemaViolation,omitempty"`
}

// BudgetConfig bounds a single expression evaluation.
type BudgetConfig struct {
	MaxEval        Duration `yaml:"maxEval" json:"maxEval"`
	MaxOutputBytes int      `yaml:"maxOutputBytes" json:"maxOutputBytes"`
}

// WatchConfig configures hot reload on file changes.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Debounce Duration `yaml:"debounce" json:"debounce"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Address         string          `yaml:"address" json:"address"`
	ReloadRateLimit RateLimitConfig `yaml:"reloadRateLimit" json:"reloadRateLimit"`
}

// RateLimitConfig is a token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// ProxyConfig configures the reverse proxy adapter.
type ProxyConfig struct {
	Enabled        bool                 `yaml:"enabled" json:"enabled"`
	Listen         string               `yaml:"listen" json:"listen"`
	Upstream       string               `yaml:"upstream" json:"upstream"`
	Timeout        Duration             `yaml:"timeout" json:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
}

// CircuitBreakerConfig configures the upstream circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	Threshold        int      `yaml:"threshold" json:"threshold"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
	HalfOpenRequests int      `yaml:"halfOpenRequests" json:"halfOpenRequests"`
}

// SessionConfig configures how session attributes are derived.
type SessionConfig struct {
	JWT JWTConfig `yaml:"jwt" json:"jwt"`
}

// JWTConfig exposes verified bearer token claims as session attributes.
type JWTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Header   string `yaml:"header" json:"header"`
	JWKSFile string `yaml:"jwksFile" json:"jwksFile"`
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`
}

// BroadcastConfig configures reload fan-out between instances over Redis
// pub/sub.
type BroadcastConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Engine: EngineConfig{
			SpecsDir:         DefaultSpecsDir,
			ErrorMode:        DefaultErrorMode,
			SchemaValidation: DefaultSchemaValidation,
			Budget: BudgetConfig{
				MaxEval:        Duration(DefaultMaxEval),
				MaxOutputBytes: DefaultMaxOutputBytes,
			},
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration(DefaultWatchDebounce),
		},
		Admin: AdminConfig{
			Address: DefaultAdminAddress,
			ReloadRateLimit: RateLimitConfig{
				RequestsPerSecond: DefaultReloadRPS,
				Burst:             DefaultReloadBurst,
			},
		},
		Proxy: ProxyConfig{
			Listen:  DefaultProxyListen,
			Timeout: Duration(DefaultProxyTimeout),
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        DefaultBreakerThreshold,
				Timeout:          Duration(DefaultBreakerTimeout),
				HalfOpenRequests: DefaultBreakerHalfOpen,
			},
		},
		Session: SessionConfig{
			JWT: JWTConfig{Header: DefaultSessionHeader},
		},
		Broadcast: BroadcastConfig{
			Channel: DefaultBroadcastChannel,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			Metrics: MetricsConfig{Enabled: true, Namespace: DefaultMetricsNamespace},
			Tracing: TracingConfig{SamplingRate: 1.0, ServiceName: DefaultTracingServiceName},
		},
	}
}

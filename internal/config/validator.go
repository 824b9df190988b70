package config

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/util"
)

// ValidationError is one invalid configuration field.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is matches util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates an AppConfig.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *AppConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns every problem found.
func (v *Validator) Validate(cfg *AppConfig) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateEngine(&cfg.Engine)
	v.validateWatch(&cfg.Watch)
	v.validateAdmin(&cfg.Admin)
	v.validateProxy(&cfg.Proxy)
	v.validateSession(&cfg.Session)
	v.validateBroadcast(&cfg.Broadcast)
	v.validateObservability(&cfg.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateEngine(e *EngineConfig) {
	if strings.TrimSpace(e.SpecsDir) == "" {
		v.addError("engine.specsDir", "specsDir is required")
	}

	switch strings.ReplaceAll(strings.ToUpper(e.ErrorMode), "-", "_") {
	case "", "PASS_THROUGH", "PASSTHROUGH", "DENY":
	default:
		v.addError("engine.errorMode", fmt.Sprintf("invalid error mode %q, must be PASS_THROUGH or DENY", e.ErrorMode))
	}

	switch strings.ToLower(e.SchemaValidation) {
	case "", "strict", "lenient":
	default:
		v.addError("engine.schemaValidation",
			fmt.Sprintf("invalid schema validation mode %q, must be strict or lenient", e.SchemaValidation))
	}

	v.validateStatus("engine.denyStatus.expressionEval", e.DenyStatus.ExpressionEval)
	v.validateStatus("engine.denyStatus.evalBudgetExceeded", e.DenyStatus.EvalBudgetExceeded)
	v.validateStatus("engine.denyStatus.inputSchemaViolation", e.DenyStatus.InputSchemaViolation)

	if e.Budget.MaxEval < 0 {
		v.addError("engine.budget.maxEval", "maxEval must not be negative")
	}
	if e.Budget.MaxOutputBytes < 0 {
		v.addError("engine.budget.maxOutputBytes", "maxOutputBytes must not be negative")
	}
}

func (v *Validator) validateStatus(path string, code int) {
	if code == 0 {
		return
	}
	if err := util.ValidateErrorStatus(code); err != nil {
		v.addError(path, err.Error())
	}
}

func (v *Validator) validateWatch(w *WatchConfig) {
	if w.Debounce < 0 {
		v.addError("watch.debounce", "debounce must not be negative")
	}
}

func (v *Validator) validateAdmin(a *AdminConfig) {
	if a.Address == "" {
		v.addError("admin.address", "address is required")
	}
	if a.ReloadRateLimit.RequestsPerSecond <= 0 {
		v.addError("admin.reloadRateLimit.requestsPerSecond", "requestsPerSecond must be positive")
	}
	if a.ReloadRateLimit.Burst <= 0 {
		v.addError("admin.reloadRateLimit.burst", "burst must be positive")
	}
}

func (v *Validator) validateProxy(p *ProxyConfig) {
	if !p.Enabled {
		return
	}
	if p.Listen == "" {
		v.addError("proxy.listen", "listen address is required when the proxy is enabled")
	}
	if p.Upstream == "" {
		v.addError("proxy.upstream", "upstream is required when the proxy is enabled")
	} else if err := util.ValidateURL(p.Upstream); err != nil {
		v.addError("proxy.upstream", err.Error())
	}
	if p.Timeout < 0 {
		v.addError("proxy.timeout", "timeout must not be negative")
	}
	if cb := p.CircuitBreaker; cb.Enabled {
		if cb.Threshold <= 0 {
			v.addError("proxy.circuitBreaker.threshold", "threshold must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError("proxy.circuitBreaker.timeout", "timeout must be positive")
		}
		if cb.HalfOpenRequests <= 0 {
			v.addError("proxy.circuitBreaker.halfOpenRequests", "halfOpenRequests must be positive")
		}
	}
}

func (v *Validator) validateSession(s *SessionConfig) {
	if !s.JWT.Enabled {
		return
	}
	if s.JWT.JWKSFile == "" {
		v.addError("session.jwt.jwksFile", "jwksFile is required when JWT sessions are enabled")
	}
	if err := util.ValidateHeaderName(s.JWT.Header); err != nil {
		v.addError("session.jwt.header", err.Error())
	}
}

func (v *Validator) validateBroadcast(b *BroadcastConfig) {
	if !b.Enabled {
		return
	}
	if b.Address == "" {
		v.addError("broadcast.address", "address is required when broadcast is enabled")
	}
	if b.Channel == "" {
		v.addError("broadcast.channel", "channel is required when broadcast is enabled")
	}
	if b.DB < 0 {
		v.addError("broadcast.db", "db must not be negative")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	switch strings.ToLower(o.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level))
	}
	switch strings.ToLower(o.Logging.Format) {
	case "", "json", "console":
	default:
		v.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format))
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

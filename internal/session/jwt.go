package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

const (
	defaultHeader = "Authorization"
	bearerPrefix  = "Bearer "
	defaultSkew   = 30 * time.Second
)

// JWTSource resolves session attributes from a JWT in a request header.
// It is safe for concurrent use; Reload swaps the key set atomically.
type JWTSource struct {
	header   string
	jwksFile string
	issuer   string
	audience string
	skew     time.Duration
	logger   observability.Logger
	keys     atomic.Pointer[jwk.Set]
}

// Option configures a JWTSource.
type Option func(*JWTSource)

// WithHeader sets the header carrying the token. The Authorization header
// expects a Bearer prefix; any other header carries the bare token.
func WithHeader(name string) Option {
	return func(s *JWTSource) {
		if name != "" {
			s.header = name
		}
	}
}

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) Option {
	return func(s *JWTSource) {
		s.issuer = issuer
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) Option {
	return func(s *JWTSource) {
		s.audience = audience
	}
}

// WithAcceptableSkew sets the clock skew tolerated for exp and nbf.
func WithAcceptableSkew(d time.Duration) Option {
	return func(s *JWTSource) {
		s.skew = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *JWTSource) {
		s.logger = logger
	}
}

// NewJWTSource creates a source verifying tokens against the JWKS file.
func NewJWTSource(jwksFile string, opts ...Option) (*JWTSource, error) {
	s := &JWTSource{
		header:   defaultHeader,
		jwksFile: jwksFile,
		skew:     defaultSkew,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the JWKS file. On failure the previous key set stays in
// use.
func (s *JWTSource) Reload() error {
	set, err := jwk.ReadFile(s.jwksFile)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrKeySetUnavailable, s.jwksFile, err)
	}
	s.keys.Store(&set)
	s.logger.Info("session key set loaded",
		observability.String("file", s.jwksFile),
		observability.Int("keys", set.Len()),
	)
	return nil
}

// Session returns the verified claims of the request's token. A request
// without the header returns a nil map and a nil error.
func (s *JWTSource) Session(r *http.Request) (map[string]any, error) {
	raw, err := s.extract(r)
	if err != nil || raw == "" {
		return nil, err
	}
	return s.Verify(raw)
}

// Verify checks a compact serialized token and returns its claims as plain
// JSON values.
func (s *JWTSource) Verify(raw string) (map[string]any, error) {
	set := s.keys.Load()
	if set == nil {
		return nil, ErrKeySetUnavailable
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(*set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(s.skew),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims(tok)
}

func (s *JWTSource) extract(r *http.Request) (string, error) {
	value := r.Header.Get(s.header)
	if value == "" {
		return "", nil
	}
	if !strings.EqualFold(s.header, defaultHeader) {
		return strings.TrimSpace(value), nil
	}
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidPrefix
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// claims renders the token through its JSON form so timestamps become
// numbers and audiences become arrays, as the token carried them.
func claims(tok jwt.Token) (map[string]any, error) {
	data, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}
	decoded, err := message.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	out, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to decode claims: got %T", decoded)
	}
	return out, nil
}

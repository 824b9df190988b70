package admin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/profile"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// Problem types of admin failures.
const (
	URNReloadFailed = "urn:message-xform:error:reload-failed"
	URNRateLimited  = "urn:message-xform:error:rate-limited"
	URNNotFound     = "urn:message-xform:error:not-found"
)

const problemContentType = "application/problem+json"

// SpecSummary describes a loaded spec.
type SpecSummary struct {
	ID            string `json:"id"`
	Version       string `json:"version"`
	Description   string `json:"description,omitempty"`
	Lang          string `json:"lang"`
	Source        string `json:"source,omitempty"`
	Bidirectional bool   `json:"bidirectional"`
	Headers       bool   `json:"headers"`
	Status        bool   `json:"status"`
	URL           bool   `json:"url"`
}

// ProfileSummary describes the active profile.
type ProfileSummary struct {
	ID          string         `json:"id"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	Source      string         `json:"source,omitempty"`
	Entries     []EntrySummary `json:"entries"`
}

// EntrySummary describes one profile entry.
type EntrySummary struct {
	Index       int    `json:"index"`
	Spec        string `json:"spec"`
	Direction   string `json:"direction"`
	Path        string `json:"path"`
	Method      string `json:"method,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Status      string `json:"status,omitempty"`
	Specificity int    `json:"specificity"`
}

// ReloadResponse is the body of a successful reload.
type ReloadResponse struct {
	Status   string `json:"status"`
	Specs    int    `json:"specs"`
	Profile  string `json:"profile,omitempty"`
	Duration string `json:"duration"`
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter.Allow() {
			c.Next()
			return
		}

		retry := 1
		if limit := float64(s.limiter.Limit()); limit > 0 {
			retry = int(math.Ceil(1 / limit))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		s.logger.Warn("admin reload rate limited",
			observability.String("remote_addr", c.ClientIP()),
		)
		abortWithProblem(c, xformerr.ProblemDetail{
			Type:     URNRateLimited,
			Title:    "Too Many Requests",
			Status:   http.StatusTooManyRequests,
			Detail:   "reload rate limit exceeded",
			Instance: c.Request.URL.Path,
		})
	}
}

func (s *Server) handleReload(c *gin.Context) {
	start := time.Now()
	if err := s.reload(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if xformerr.IsLoadError(err) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("admin reload failed", observability.Error(err))
		abortWithProblem(c, xformerr.ProblemDetail{
			Type:     URNReloadFailed,
			Title:    "Reload Failed",
			Status:   status,
			Detail:   err.Error(),
			Instance: c.Request.URL.Path,
		})
		return
	}

	resp := ReloadResponse{
		Status:   "reloaded",
		Specs:    s.engine.SpecCount(),
		Duration: time.Since(start).String(),
	}
	if p := s.engine.ActiveProfile(); p != nil {
		resp.Profile = p.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSpecs(c *gin.Context) {
	specs := s.engine.Specs()
	out := make([]SpecSummary, 0, len(specs))
	for _, ts := range specs {
		out = append(out, summarizeSpec(ts))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSpec(c *gin.Context) {
	key := c.Param("key")
	ts, ok := s.engine.Spec(key)
	if !ok {
		abortWithProblem(c, xformerr.ProblemDetail{
			Type:     URNNotFound,
			Title:    "Not Found",
			Status:   http.StatusNotFound,
			Detail:   "no spec loaded under " + strconv.Quote(key),
			Instance: c.Request.URL.Path,
		})
		return
	}
	c.JSON(http.StatusOK, summarizeSpec(ts))
}

func (s *Server) handleProfile(c *gin.Context) {
	p := s.engine.ActiveProfile()
	if p == nil {
		abortWithProblem(c, xformerr.ProblemDetail{
			Type:     URNNotFound,
			Title:    "Not Found",
			Status:   http.StatusNotFound,
			Detail:   "no active profile",
			Instance: c.Request.URL.Path,
		})
		return
	}
	c.JSON(http.StatusOK, summarizeProfile(p))
}

func summarizeSpec(ts *spec.TransformSpec) SpecSummary {
	return SpecSummary{
		ID:            ts.ID,
		Version:       ts.Version,
		Description:   ts.Description,
		Lang:          ts.Lang,
		Source:        ts.Source,
		Bidirectional: ts.Bidirectional(),
		Headers:       ts.Headers != nil && !ts.Headers.IsEmpty(),
		Status:        ts.Status != nil,
		URL:           ts.URL != nil,
	}
}

func summarizeProfile(p *profile.Profile) ProfileSummary {
	out := ProfileSummary{
		ID:          p.ID,
		Version:     p.Version,
		Description: p.Description,
		Source:      p.Source,
		Entries:     make([]EntrySummary, 0, len(p.Entries)),
	}
	for _, e := range p.Entries {
		out.Entries = append(out.Entries, EntrySummary{
			Index:       e.Index,
			Spec:        e.Spec.Key(),
			Direction:   e.Direction.String(),
			Path:        e.PathPattern,
			Method:      e.Method,
			ContentType: string(e.ContentType),
			Status:      e.Status.String(),
			Specificity: e.Specificity(),
		})
	}
	return out
}

func abortWithProblem(c *gin.Context, p xformerr.ProblemDetail) {
	c.Data(p.Status, problemContentType, p.Marshal())
	c.Abort()
}

// errNoReload is returned when the server was built without a reload func.
var errNoReload = errors.New("reload is not configured")

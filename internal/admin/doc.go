// Package admin serves the msgxform admin API on gin.
//
// Routes:
//
//	GET  /health, /healthz, /livez, /ready, /readyz   probes
//	GET  /metrics                                      Prometheus exposition
//	POST /admin/reload                                 reload specs and profile
//	GET  /admin/specs                                  loaded specs
//	GET  /admin/specs/:key                             one spec by id@version
//	GET  /admin/profile                                active profile
//
// Reload is rate limited with a token bucket. Reload and rate-limit
// failures answer with an RFC 9457 application/problem+json body.
package admin

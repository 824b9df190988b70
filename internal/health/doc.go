// Package health serves liveness and readiness probes for msgxform.
//
// Liveness (/healthz, /livez) only reports that the process is serving.
// Readiness (/readyz, /ready) runs every registered check concurrently.
// A failing critical check makes the instance unready (503). A failing
// non-critical check reports "degraded" and keeps the instance ready.
//
//	h := health.NewHandler(logger)
//	h.AddCheck(health.CustomHealthCheck("specs", engineLoaded))
//	h.AddCheck(health.RedisHealthCheck("broadcast", client, health.WithCritical(false)))
//	h.RegisterRoutes(router)
package health

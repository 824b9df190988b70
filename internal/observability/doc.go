// Package observability provides logging, metrics, and tracing for the
// transform service.
//
// # Logging
//
// Logger is a small interface over zap. Library components default to
// NopLogger and accept a logger through a functional option:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "debug"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info("spec loaded",
//	    observability.String("spec_id", "orders"),
//	    observability.Int("spec_count", 3),
//	)
//
// # Metrics
//
// Metrics owns a dedicated Prometheus registry. Component metrics (engine,
// reload) are created with promauto and bridged onto it with MustRegister,
// then served by Handler on the admin server.
//
// # Tracing
//
// NewTracer configures an OpenTelemetry provider with an OTLP gRPC exporter.
// Engine operations create spans through otel.Tracer regardless of whether
// export is enabled.
package observability

// Package observability provides the gateway's logging and tracing.
//
// Logging is structured via zap behind the Logger interface:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request admitted",
//	    observability.String("path", "/api/name"),
//	    observability.Int64("interface_id", 7),
//	)
//
// Tracing uses OpenTelemetry with an OTLP gRPC exporter. Request and trace
// identifiers travel in the request context and are attached to log lines by
// Logger.WithContext.
package observability

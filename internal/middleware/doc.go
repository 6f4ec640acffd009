// Package middleware provides the HTTP middleware chained in front of the
// gateway filter.
//
//   - RequestID: request identifier injection and propagation
//   - Recovery: panic recovery with stack trace logging
//   - Logging: structured access logging
//   - BodyLimit: request body size limiting
//
// Middleware follow the standard func(http.Handler) http.Handler shape:
//
//	handler := middleware.RequestID()(
//	    middleware.Logging(logger)(
//	        middleware.Recovery(logger)(yourHandler),
//	    ),
//	)
package middleware

// Package logging provides structured, context-aware logging on top of Zap.
//
// The Logger takes a context.Context on every call and copies correlation
// data out of it: the OpenTelemetry trace and span IDs, the HTTP request ID
// and the authenticated user ID. Sensitive field names (password, token,
// api_key, authorization, ...) are redacted at the encoder.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	ctx = logging.WithUserID(ctx, 7)
//	logger.Info(ctx, "items classified", zap.Int("count", 3))
//
// Use NewTestLogger in tests to assert on emitted entries.
package logging

// Package telemetry wires OpenTelemetry tracing and metrics for digitaltwin.
//
// Spans and metrics are exported over OTLP (gRPC or HTTP/protobuf) to a
// collector. When telemetry is disabled or an exporter fails to start, the
// package hands out the global no-op providers so instrumented code keeps
// working.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("digitaltwin/chat").Start(ctx, "chat.send")
//	defer span.End()
//
// Tests use NewTestTelemetry and assert on recorded spans and metrics.
package telemetry

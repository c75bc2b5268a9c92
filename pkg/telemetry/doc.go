// Package telemetry sets up logging, metrics and tracing for control runs.
//
// Logging goes through the global zerolog logger, which Setup configures
// once at startup. Metrics are Prometheus collectors in a private registry
// that can be written to a node_exporter textfile when a run ends, since
// control is a short-lived process with nothing to scrape. Traces use
// OpenTelemetry with a stdout or OTLP exporter.
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, host, provider)
//	defer span.End()
package telemetry

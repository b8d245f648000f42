// Package instrumentation wires OpenTelemetry metrics and traces into the
// gateway.
//
// With Enabled false every provider is a no-op. When enabled, an SDK meter
// provider and tracer provider are created; metrics can be exported in
// Prometheus format and traces written to stdout:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "canvas-mcp-gateway",
//		MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// # Metrics
//
// HTTP:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} (ms)
//
// Flows:
//   - oauth.authorization.code_issued{client_id}
//   - oauth.code.exchanged{client_id}
//   - oauth.token.refreshed{client_id, rotated}
//   - oauth.client.registered{confidential}
//   - oauth.bearer.validated{method, result}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.pkce.validation_failed
//   - oauth.code.reuse_detected
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (ms)
//   - oauth.registry.clients (gauge)
//
// Span attributes never carry credential values; see the Attr constants.
package instrumentation

package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every instrument the gateway records. Record methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	CodesIssued      metric.Int64Counter
	CodesExchanged   metric.Int64Counter
	TokensRefreshed  metric.Int64Counter
	ClientRegistered metric.Int64Counter
	BearerValidated  metric.Int64Counter

	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	CodeReuseDetected    metric.Int64Counter

	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	RegistryClients          metric.Int64ObservableGauge
}

type counterSpec struct {
	dst   *metric.Int64Counter
	scope string
	name  string
	desc  string
	unit  string
}

type histogramSpec struct {
	dst   *metric.Float64Histogram
	scope string
	name  string
	desc  string
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	counters := []counterSpec{
		{&m.HTTPRequestsTotal, "http", "oauth.http.requests.total", "Total number of HTTP requests", "{request}"},
		{&m.CodesIssued, "server", "oauth.authorization.code_issued", "Authorization codes issued", "{code}"},
		{&m.CodesExchanged, "server", "oauth.code.exchanged", "Authorization codes exchanged for tokens", "{exchange}"},
		{&m.TokensRefreshed, "server", "oauth.token.refreshed", "Access tokens minted from refresh tokens", "{refresh}"},
		{&m.ClientRegistered, "server", "oauth.client.registered", "Clients added to the registry", "{client}"},
		{&m.BearerValidated, "server", "oauth.bearer.validated", "Bearer token and API key checks on protected endpoints", "{check}"},
		{&m.RateLimitExceeded, "security", "oauth.rate_limit.exceeded", "Requests rejected by the rate limiter", "{violation}"},
		{&m.PKCEValidationFailed, "security", "oauth.pkce.validation_failed", "PKCE verifier mismatches", "{failure}"},
		{&m.CodeReuseDetected, "security", "oauth.code.reuse_detected", "Authorization code replay attempts", "{attempt}"},
		{&m.StorageOperationTotal, "storage", "storage.operation.total", "Total number of KV operations", "{operation}"},
	}
	for _, c := range counters {
		counter, err := inst.Meter(c.scope).Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	histograms := []histogramSpec{
		{&m.HTTPRequestDuration, "http", "oauth.http.request.duration", "HTTP request duration in milliseconds"},
		{&m.StorageOperationDuration, "storage", "storage.operation.duration", "KV operation duration in milliseconds"},
	}
	for _, h := range histograms {
		hist, err := inst.Meter(h.scope).Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.dst = hist
	}

	gauge, err := inst.Meter("server").Int64ObservableGauge("oauth.registry.clients",
		metric.WithDescription("Number of clients in the registry"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth.registry.clients gauge: %w", err)
	}
	m.RegistryClients = gauge

	return m, nil
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordCodeIssued records an authorization code minted for clientID.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordCodeExchange records a successful code redemption.
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesExchanged.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordTokenRefresh records an access token minted from a refresh token.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string, rotated bool) {
	if m == nil {
		return
	}
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("rotated", rotated),
	))
}

// RecordClientRegistration records a registry upsert.
func (m *Metrics) RecordClientRegistration(ctx context.Context, confidential bool) {
	if m == nil {
		return
	}
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(attribute.Bool("confidential", confidential)))
}

// RecordBearerValidation records a protected-endpoint authentication
// attempt. method is "oauth" or "api-key"; result is "ok" or a reason.
func (m *Metrics) RecordBearerValidation(ctx context.Context, method, result string) {
	if m == nil {
		return
	}
	m.BearerValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

// RecordRateLimitExceeded records a rate limit rejection.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordPKCEValidationFailed records a verifier mismatch.
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1)
}

// RecordCodeReuseDetected records a replayed authorization code.
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	if m == nil {
		return
	}
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordStorageOperation records a KV operation. result is "success",
// "not_found" or "error".
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("operation", operation)))
}

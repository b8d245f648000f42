package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
)

// AuthorizationCode is the context an authorization code is bound to.
// Timestamps are Unix milliseconds.
type AuthorizationCode struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Scope               string `json:"scope,omitempty"`
	UserID              string `json:"user_id"`
	CreatedAt           int64  `json:"created_at"`
}

// TokenRecord binds an access or refresh token to its client and user.
// ID is a random identifier that audit logs use in place of the token value.
type TokenRecord struct {
	ID        string `json:"id,omitempty"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	Scope     string `json:"scope,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *TokenRecord) Expired(now time.Time) bool {
	return t.ExpiresAt < now.UnixMilli()
}

// APIKey is a static credential accepted by the bearer middleware.
type APIKey struct {
	ID          string   `json:"id,omitempty"`
	UserID      string   `json:"userId"`
	Permissions []string `json:"permissions"`
	CreatedAt   int64    `json:"created_at,omitempty"`
}

// Records reads and writes typed records over a KV. When an Encryptor is
// configured every value is sealed before Put and opened after Get.
type Records struct {
	kv        KV
	encryptor *security.Encryptor
	tracer    trace.Tracer
	metrics   *instrumentation.Metrics
}

// RecordsOption configures Records.
type RecordsOption func(*Records)

// WithEncryptor seals stored values with enc.
func WithEncryptor(enc *security.Encryptor) RecordsOption {
	return func(r *Records) {
		r.encryptor = enc
	}
}

// WithInstrumentation records a span and metrics for every KV operation.
func WithInstrumentation(inst *instrumentation.Instrumentation) RecordsOption {
	return func(r *Records) {
		if inst == nil {
			return
		}
		r.tracer = inst.Tracer("storage")
		r.metrics = inst.Metrics()
	}
}

// NewRecords wraps kv.
func NewRecords(kv KV, opts ...RecordsOption) *Records {
	r := &Records{
		kv:     kv,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// KV returns the underlying store.
func (r *Records) KV() KV {
	return r.kv
}

// Ping checks the underlying store when it supports health checks.
func (r *Records) Ping(ctx context.Context) error {
	if p, ok := r.kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// SaveAuthorizationCode stores code for ttl.
func (r *Records) SaveAuthorizationCode(ctx context.Context, code string, rec *AuthorizationCode, ttl time.Duration) error {
	return r.put(ctx, AuthCodeKey(code), rec, ttl)
}

// GetAuthorizationCode returns the record for code, or ErrNotFound.
func (r *Records) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var rec AuthorizationCode
	if err := r.get(ctx, AuthCodeKey(code), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteAuthorizationCode removes code and reports whether this call removed
// it. Only the caller that sees true may redeem the code.
func (r *Records) DeleteAuthorizationCode(ctx context.Context, code string) (bool, error) {
	return r.delete(ctx, AuthCodeKey(code))
}

// SaveAccessToken stores an access token record for ttl.
func (r *Records) SaveAccessToken(ctx context.Context, token string, rec *TokenRecord, ttl time.Duration) error {
	return r.put(ctx, AccessTokenKey(token), rec, ttl)
}

// GetAccessToken returns the record for an access token, or ErrNotFound.
func (r *Records) GetAccessToken(ctx context.Context, token string) (*TokenRecord, error) {
	var rec TokenRecord
	if err := r.get(ctx, AccessTokenKey(token), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveRefreshToken stores a refresh token record for ttl.
func (r *Records) SaveRefreshToken(ctx context.Context, token string, rec *TokenRecord, ttl time.Duration) error {
	return r.put(ctx, RefreshTokenKey(token), rec, ttl)
}

// GetRefreshToken returns the record for a refresh token, or ErrNotFound.
func (r *Records) GetRefreshToken(ctx context.Context, token string) (*TokenRecord, error) {
	var rec TokenRecord
	if err := r.get(ctx, RefreshTokenKey(token), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveAPIKey stores an API key record. A ttl <= 0 never expires.
func (r *Records) SaveAPIKey(ctx context.Context, key string, rec *APIKey, ttl time.Duration) error {
	return r.put(ctx, APIKeyKey(key), rec, ttl)
}

// GetAPIKey returns the record for key, or ErrNotFound.
func (r *Records) GetAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var rec APIKey
	if err := r.get(ctx, APIKeyKey(key), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Records) put(ctx context.Context, key string, v any, ttl time.Duration) (err error) {
	ctx, finish := r.observe(ctx, "put", key)
	defer func() { finish(err) }()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", Namespace(key), err)
	}
	data, err = r.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s record: %w", Namespace(key), err)
	}
	if err := r.kv.Put(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to store %s record: %w", Namespace(key), err)
	}
	return nil
}

func (r *Records) get(ctx context.Context, key string, v any) (err error) {
	ctx, finish := r.observe(ctx, "get", key)
	defer func() { finish(err) }()

	data, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load %s record: %w", Namespace(key), err)
	}
	data, err = r.encryptor.Decrypt(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s record: %w", Namespace(key), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s record: %w", Namespace(key), err)
	}
	return nil
}

func (r *Records) delete(ctx context.Context, key string) (existed bool, err error) {
	ctx, finish := r.observe(ctx, "delete", key)
	defer func() { finish(err) }()

	existed, err = r.kv.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s record: %w", Namespace(key), err)
	}
	return existed, nil
}

// observe starts a span for a KV operation and returns a func that ends it
// and records the outcome.
func (r *Records) observe(ctx context.Context, op, key string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "storage."+op)
	instrumentation.AddStorageAttributes(span, op, Namespace(key))

	return ctx, func(err error) {
		result := "success"
		switch {
		case errors.Is(err, ErrNotFound):
			result = "not_found"
			instrumentation.SetSpanSuccess(span)
		case err != nil:
			result = "error"
			instrumentation.RecordError(span, err)
		default:
			instrumentation.SetSpanSuccess(span)
		}
		r.metrics.RecordStorageOperation(ctx, op, result, float64(time.Since(start).Microseconds())/1000)
		span.End()
	}
}

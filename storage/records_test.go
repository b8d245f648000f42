package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
	"github.com/a-ariff/canvas-student-mcp-server/storage/mock"
)

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "auth_code:abc", storage.AuthCodeKey("abc"))
	assert.Equal(t, "token:mcp_at_x", storage.AccessTokenKey("mcp_at_x"))
	assert.Equal(t, "refresh:mcp_rt_x", storage.RefreshTokenKey("mcp_rt_x"))
	assert.Equal(t, "apikey:k", storage.APIKeyKey("k"))

	assert.Equal(t, "auth_code", storage.Namespace("auth_code:abc"))
	assert.Equal(t, "unknown", storage.Namespace("nocolon"))
}

func TestRecords_AuthorizationCodeRoundTrip(t *testing.T) {
	kv := mock.NewKV()
	records := storage.NewRecords(kv)
	ctx := context.Background()

	rec := &storage.AuthorizationCode{
		ClientID:            "c1",
		RedirectURI:         "https://app/cb",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		Scope:               "read",
		UserID:              "authenticated_user",
		CreatedAt:           1_700_000_000_000,
	}
	require.NoError(t, records.SaveAuthorizationCode(ctx, "code1", rec, 600*time.Second))

	raw, ok := kv.Raw("auth_code:code1")
	require.True(t, ok)
	assert.JSONEq(t, `{
		"client_id":"c1",
		"redirect_uri":"https://app/cb",
		"code_challenge":"challenge",
		"code_challenge_method":"S256",
		"scope":"read",
		"user_id":"authenticated_user",
		"created_at":1700000000000
	}`, string(raw))

	got, err := records.GetAuthorizationCode(ctx, "code1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	existed, err := records.DeleteAuthorizationCode(ctx, "code1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = records.GetAuthorizationCode(ctx, "code1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecords_TokensUseSeparateNamespaces(t *testing.T) {
	kv := mock.NewKV()
	records := storage.NewRecords(kv)
	ctx := context.Background()

	rec := &storage.TokenRecord{ID: "id1", ClientID: "c1", UserID: "u", IssuedAt: 1, ExpiresAt: 2}
	require.NoError(t, records.SaveAccessToken(ctx, "same", rec, time.Hour))

	_, err := records.GetRefreshToken(ctx, "same")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := records.GetAccessToken(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	require.NoError(t, records.SaveRefreshToken(ctx, "r", rec, time.Hour))
	got, err = records.GetRefreshToken(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRecords_APIKey(t *testing.T) {
	kv := mock.NewKV()
	records := storage.NewRecords(kv)
	ctx := context.Background()

	require.NoError(t, records.SaveAPIKey(ctx, "k1", &storage.APIKey{UserID: "u1", Permissions: []string{"read"}}, 0))

	raw, _ := kv.Raw("apikey:k1")
	assert.Contains(t, string(raw), `"userId":"u1"`)

	got, err := records.GetAPIKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, got.Permissions)
}

func TestRecords_Encryption(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	kv := mock.NewKV()
	records := storage.NewRecords(kv, storage.WithEncryptor(enc))
	ctx := context.Background()

	rec := &storage.TokenRecord{ClientID: "secret-client", UserID: "u", ExpiresAt: 10}
	require.NoError(t, records.SaveAccessToken(ctx, "t", rec, time.Hour))

	raw, _ := kv.Raw("token:t")
	assert.NotContains(t, string(raw), "secret-client")

	got, err := records.GetAccessToken(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// A store written with another key cannot be read.
	otherKey, err := security.GenerateKey()
	require.NoError(t, err)
	other, err := security.NewEncryptor(otherKey)
	require.NoError(t, err)
	_, err = storage.NewRecords(kv, storage.WithEncryptor(other)).GetAccessToken(ctx, "t")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestRecords_StoreFailureIsWrapped(t *testing.T) {
	kv := mock.NewKV()
	boom := errors.New("connection refused")
	kv.FailWith(boom)
	records := storage.NewRecords(kv)
	ctx := context.Background()

	_, err := records.GetAuthorizationCode(ctx, "c")
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, storage.ErrNotFound))

	err = records.SaveAccessToken(ctx, "t", &storage.TokenRecord{}, time.Hour)
	require.ErrorIs(t, err, boom)
	assert.True(t, strings.Contains(err.Error(), "token"))

	_, err = records.DeleteAuthorizationCode(ctx, "c")
	assert.ErrorIs(t, err, boom)
}

func TestRecords_CorruptValue(t *testing.T) {
	kv := mock.NewKV()
	require.NoError(t, kv.Put(context.Background(), "token:bad", []byte("{not json"), time.Hour))

	_, err := storage.NewRecords(kv).GetAccessToken(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRecords_Ping(t *testing.T) {
	// mock.KV does not implement Pinger.
	assert.NoError(t, storage.NewRecords(mock.NewKV()).Ping(context.Background()))
}

func TestTokenRecord_Expired(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	assert.False(t, (&storage.TokenRecord{ExpiresAt: 1_000_000}).Expired(now))
	assert.True(t, (&storage.TokenRecord{ExpiresAt: 999_999}).Expired(now))
}

func TestRecords_Instrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:       true,
		MetricReader:  reader,
		SpanProcessor: recorder,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	records := storage.NewRecords(mock.NewKV(), storage.WithInstrumentation(inst))
	ctx := context.Background()

	require.NoError(t, records.SaveAuthorizationCode(ctx, "c", &storage.AuthorizationCode{ClientID: "c1"}, time.Minute))
	_, err = records.GetAccessToken(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "storage.put", spans[0].Name())
	assert.Equal(t, "storage.get", spans[1].Name())
	assertSpanAttr(t, spans[0], instrumentation.AttrStorageNamespace, "auth_code")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	results := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "storage.operation.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("result")
				results[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), results["success"])
	assert.Equal(t, int64(1), results["not_found"])
}

func assertSpanAttr(t *testing.T, span sdktrace.ReadOnlySpan, key, want string) {
	t.Helper()
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			assert.Equal(t, want, kv.Value.AsString())
			return
		}
	}
	t.Errorf("span %q has no attribute %q", span.Name(), key)
}

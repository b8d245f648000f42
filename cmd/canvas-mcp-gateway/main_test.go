package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/server"
	"github.com/a-ariff/canvas-student-mcp-server/storage/memory"
)

// clearEnv unsets the overrides config.Load reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvIssuer, config.EnvClientID, config.EnvClientSecret, config.EnvRedirectURIs,
		config.EnvEncryptionKey, config.EnvValkeyAddr, config.EnvRedisAddr,
	} {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name:   "json",
			level:  "info",
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &entry))
				assert.Equal(t, "hello", entry["msg"])
			},
		},
		{
			name:   "text",
			level:  "debug",
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
			},
		},
		{
			name:   "level filters",
			level:  "error",
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Empty(t, out)
			},
		},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "canvas-mcp-gateway version "+version+"\n", out)
}

func TestPKCECmd(t *testing.T) {
	t.Run("given verifier", func(t *testing.T) {
		out, err := execute(t, "pkce", "verifier1")
		require.NoError(t, err)
		assert.Contains(t, out, "code_verifier=verifier1\n")
		assert.Contains(t, out, "code_challenge="+oauth2.S256ChallengeFromVerifier("verifier1")+"\n")
		assert.Contains(t, out, "code_challenge_method=S256\n")
	})

	t.Run("generated verifier", func(t *testing.T) {
		out, err := execute(t, "pkce")
		require.NoError(t, err)

		values := map[string]string{}
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			k, v, _ := strings.Cut(line, "=")
			values[k] = v
		}
		assert.Len(t, values["code_verifier"], 43)
		assert.True(t, server.VerifyPKCE(values["code_verifier"], values["code_challenge"]))
	})
}

func TestKeygenCmd(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)

	key, err := security.KeyFromBase64(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, security.KeySize)
}

func TestClientsCmd(t *testing.T) {
	out, err := execute(t, "clients")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "CLIENT ID")
	assert.Contains(t, lines[1], server.DefaultClientID)
	assert.Contains(t, lines[1], "public")
}

func TestAPIKeyCreateCmd_RequiresSharedStore(t *testing.T) {
	_, err := execute(t, "apikey", "create", "--user", "student-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared store")
}

func TestOpenStore(t *testing.T) {
	kv, closeStore, err := openStore(config.StoreConfig{Backend: config.BackendMemory}, discardLogger())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &memory.Store{}, kv)

	_, _, err = openStore(config.StoreConfig{Backend: "etcd"}, discardLogger())
	assert.Error(t, err)
}

func TestTLSConfig(t *testing.T) {
	assert.Nil(t, tlsConfig(false))
	require.NotNil(t, tlsConfig(true))
}

func TestBuildGateway_Routes(t *testing.T) {
	clearEnv(t)
	cfg := config.Default()
	cfg.Instrumentation = config.InstrumentationConfig{
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracesExporter:  instrumentation.ExporterNone,
	}

	gw, err := buildGateway(cfg, discardLogger())
	require.NoError(t, err)
	defer func() {
		ctx := context.Background()
		_ = gw.mcp.Shutdown(ctx)
		gw.close(ctx)
	}()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/.well-known/oauth-authorization-server", http.StatusOK},
		{http.MethodGet, "/.well-known/mcp-config", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/mcp", http.StatusUnauthorized},
		{http.MethodGet, "/sse", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			gw.handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRunServe_GracefulShutdown(t *testing.T) {
	clearEnv(t)
	cfg := config.Default()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, discardLogger(), ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + 5*time.Second):
		t.Fatal("runServe did not return after cancellation")
	}
}

package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/a-ariff/canvas-student-mcp-server/server"
)

// APIKeyHeader carries a static API key as an alternative to OAuth.
const APIKeyHeader = "X-API-Key"

// WWW-Authenticate challenges sent by ValidateToken
const (
	bearerChallenge             = `Bearer realm="MCP Server"`
	bearerInvalidTokenChallenge = `Bearer realm="MCP Server", error="invalid_token"`
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const authContextKey contextKey = "auth_context"

// ValidateToken is middleware that authenticates MCP requests. A known
// X-API-Key wins; an unknown one falls through to the bearer check. A
// bearer token must resolve to an unexpired access token.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientIP := h.clientIP(r)

		if key := r.Header.Get(APIKeyHeader); key != "" {
			authCtx, err := h.server.ValidateAPIKey(ctx, key)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(ContextWithAuthContext(ctx, authCtx)))
				return
			}
			if !errors.Is(err, server.ErrInvalidToken) {
				h.writeError(w, r, err)
				return
			}
			h.logger.Debug("API key rejected", "ip", clientIP)
			h.server.Auditor.LogBearerRejected(clientIP, server.AuthMethodAPIKey, "unknown_api_key")
		}

		token, ok := trimBearer(r.Header.Get("Authorization"))
		if !ok {
			h.server.Auditor.LogBearerRejected(clientIP, "", "missing_credentials")
			w.Header().Set("WWW-Authenticate", bearerChallenge)
			writeJSON(w, http.StatusUnauthorized, UnauthorizedResponse{
				Error:       ErrorCodeUnauthorized,
				AuthMethods: []string{server.AuthMethodOAuth, server.AuthMethodAPIKey},
			})
			return
		}

		authCtx, err := h.server.ValidateAccessToken(ctx, token)
		if err != nil {
			if !errors.Is(err, server.ErrInvalidToken) {
				h.writeError(w, r, err)
				return
			}
			h.logger.Debug("Bearer token rejected", "ip", clientIP)
			h.server.Auditor.LogBearerRejected(clientIP, server.AuthMethodOAuth, "invalid_token")
			w.Header().Set("WWW-Authenticate", bearerInvalidTokenChallenge)
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorCodeInvalidToken})
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAuthContext(ctx, authCtx)))
	})
}

// AuthContextFrom retrieves the principal stored by ValidateToken.
func AuthContextFrom(ctx context.Context) (*server.AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*server.AuthContext)
	return authCtx, ok && authCtx != nil
}

// ContextWithAuthContext returns a copy of ctx carrying authCtx. Useful for
// testing handlers that sit behind ValidateToken.
func ContextWithAuthContext(ctx context.Context, authCtx *server.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

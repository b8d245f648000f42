package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

func TestHandleTokenRequest_CommonValidation(t *testing.T) {
	tests := []struct {
		name       string
		req        *TokenRequest
		wantCode   string
		wantStatus int
		wantDesc   string
	}{
		{
			name:       "missing client_id",
			req:        &TokenRequest{GrantType: GrantTypeAuthorizationCode},
			wantCode:   ErrorCodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantDesc:   "client_id",
		},
		{
			name:       "missing grant_type",
			req:        &TokenRequest{ClientID: testPublicClientID},
			wantCode:   ErrorCodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantDesc:   "grant_type",
		},
		{
			name:       "unknown client",
			req:        &TokenRequest{ClientID: "nobody", GrantType: GrantTypeAuthorizationCode},
			wantCode:   ErrorCodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "confidential client without secret",
			req:        &TokenRequest{ClientID: testConfidentialClientID, GrantType: GrantTypeAuthorizationCode},
			wantCode:   ErrorCodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
			wantDesc:   "Client authentication failed",
		},
		{
			name:       "confidential client with wrong secret",
			req:        &TokenRequest{ClientID: testConfidentialClientID, ClientSecret: "nope", GrantType: GrantTypeAuthorizationCode},
			wantCode:   ErrorCodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
			wantDesc:   "Client authentication failed",
		},
		{
			name:       "password grant on a client not allowed to use it",
			req:        &TokenRequest{ClientID: testPublicClientID, GrantType: "password"},
			wantCode:   ErrorCodeUnauthorizedClient,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "refresh_token grant on code-only client",
			req:        &TokenRequest{ClientID: "code-only", GrantType: GrantTypeRefreshToken, RefreshToken: "mcp_rt_x"},
			wantCode:   ErrorCodeUnauthorizedClient,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tok, err := env.srv.HandleTokenRequest(context.Background(), tt.req)
			if tok != nil {
				t.Errorf("token = %+v, want nil", tok)
			}
			assertOAuthError(t, err, tt.wantCode, tt.wantStatus, tt.wantDesc)
		})
	}
}

func TestHandleTokenRequest_UnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Registry().Register(&Client{
		ClientID:     "legacy",
		RedirectURIs: []string{"https://legacy/cb"},
		GrantTypes:   []string{"password"},
	})

	_, err := env.srv.HandleTokenRequest(context.Background(), &TokenRequest{ClientID: "legacy", GrantType: "password"})
	assertOAuthError(t, err, ErrorCodeUnsupportedGrantType, http.StatusBadRequest, "")
}

func TestExchangeAuthorizationCode_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

	tok, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI))
	if err != nil {
		t.Fatalf("HandleTokenRequest() error = %v", err)
	}

	if len(tok.AccessToken) <= len(AccessTokenPrefix) || tok.AccessToken[:len(AccessTokenPrefix)] != AccessTokenPrefix {
		t.Errorf("access token %q lacks prefix %q", tok.AccessToken, AccessTokenPrefix)
	}
	if len(tok.RefreshToken) <= len(RefreshTokenPrefix) || tok.RefreshToken[:len(RefreshTokenPrefix)] != RefreshTokenPrefix {
		t.Errorf("refresh token %q lacks prefix %q", tok.RefreshToken, RefreshTokenPrefix)
	}
	if tok.TokenType != "Bearer" {
		t.Errorf("TokenType = %q", tok.TokenType)
	}
	if want := env.clock.Now().Add(time.Hour); !tok.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", tok.Expiry, want)
	}

	access, err := env.srv.Records().GetAccessToken(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("access token not stored: %v", err)
	}
	now := env.clock.Now().UnixMilli()
	if access.ClientID != testPublicClientID || access.UserID != DefaultUserID {
		t.Errorf("access record = %+v", access)
	}
	if access.IssuedAt != now || access.ExpiresAt != now+3600*1000 {
		t.Errorf("access timestamps = %d..%d, want %d..%d", access.IssuedAt, access.ExpiresAt, now, now+3600*1000)
	}
	if access.ID == "" {
		t.Error("access record has no id")
	}

	refresh, err := env.srv.Records().GetRefreshToken(ctx, tok.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token not stored: %v", err)
	}
	if refresh.ExpiresAt != now+30*24*3600*1000 {
		t.Errorf("refresh ExpiresAt = %d", refresh.ExpiresAt)
	}

	if _, err := env.srv.Records().GetAuthorizationCode(ctx, code); err != storage.ErrNotFound {
		t.Errorf("code still present after exchange: %v", err)
	}
}

func TestExchangeAuthorizationCode_Replay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

	if _, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI)); err != nil {
		t.Fatalf("first redemption error = %v", err)
	}
	_, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI))
	assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "Invalid or expired authorization code")
}

func TestExchangeAuthorizationCode_ConcurrentRedemption(t *testing.T) {
	env := newTestEnv(t)
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.srv.HandleTokenRequest(context.Background(), codeRequest(testPublicClientID, code, testPublicRedirectURI))
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("successful redemptions = %d, want exactly 1", got)
	}

	// One access and one refresh token.
	if keys := env.kv.Keys(); len(keys) != 2 {
		t.Errorf("stored keys = %v, want one token pair", keys)
	}
}

func TestExchangeAuthorizationCode_Expired(t *testing.T) {
	env := newTestEnv(t)
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

	env.clock.Advance(601 * time.Second)

	_, err := env.srv.HandleTokenRequest(context.Background(), codeRequest(testPublicClientID, code, testPublicRedirectURI))
	assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "Invalid or expired authorization code")
}

func TestExchangeAuthorizationCode_BindingChecks(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, env *testEnv) *TokenRequest
		wantDesc string
	}{
		{
			name: "unknown code",
			setup: func(t *testing.T, env *testEnv) *TokenRequest {
				return codeRequest(testPublicClientID, "never-issued", testPublicRedirectURI)
			},
			wantDesc: "Invalid or expired authorization code",
		},
		{
			name: "redirect_uri differs from authorize",
			setup: func(t *testing.T, env *testEnv) *TokenRequest {
				env.srv.Registry().Register(&Client{
					ClientID:     testPublicClientID,
					RedirectURIs: []string{testPublicRedirectURI, "https://app/other"},
					GrantTypes:   []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
				})
				code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
				return codeRequest(testPublicClientID, code, "https://app/other")
			},
			wantDesc: "Redirect URI mismatch",
		},
		{
			name: "code issued to another client",
			setup: func(t *testing.T, env *testEnv) *TokenRequest {
				code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
				return codeRequest("code-only", code, testPublicRedirectURI)
			},
			wantDesc: "Client mismatch",
		},
		{
			name: "redirect_uri deregistered after issuance",
			setup: func(t *testing.T, env *testEnv) *TokenRequest {
				code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
				env.srv.Registry().Register(&Client{
					ClientID:     testPublicClientID,
					RedirectURIs: []string{"https://app/new"},
					GrantTypes:   []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
				})
				return codeRequest(testPublicClientID, code, testPublicRedirectURI)
			},
			wantDesc: "Redirect URI no longer allowed",
		},
		{
			name: "wrong verifier",
			setup: func(t *testing.T, env *testEnv) *TokenRequest {
				code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
				req := codeRequest(testPublicClientID, code, testPublicRedirectURI)
				req.CodeVerifier = "not-the-verifier"
				return req
			},
			wantDesc: "PKCE verification failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.srv.HandleTokenRequest(context.Background(), tt.setup(t, env))
			assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, tt.wantDesc)
			if n := env.kv.Calls("Delete"); n != 0 {
				t.Errorf("rejected exchange deleted %d keys", n)
			}
		})
	}
}

func TestExchangeAuthorizationCode_MissingParameters(t *testing.T) {
	for _, field := range []string{"code", "code_verifier", "redirect_uri"} {
		t.Run(field, func(t *testing.T) {
			env := newTestEnv(t)
			req := codeRequest(testPublicClientID, "some-code", testPublicRedirectURI)
			switch field {
			case "code":
				req.Code = ""
			case "code_verifier":
				req.CodeVerifier = ""
			case "redirect_uri":
				req.RedirectURI = ""
			}
			_, err := env.srv.HandleTokenRequest(context.Background(), req)
			assertOAuthError(t, err, ErrorCodeInvalidRequest, http.StatusBadRequest, "")
		})
	}
}

func TestExchangeAuthorizationCode_FailedPKCEKeepsCode(t *testing.T) {
	env := newTestEnv(t)
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

	bad := codeRequest(testPublicClientID, code, testPublicRedirectURI)
	bad.CodeVerifier = "guess"
	if _, err := env.srv.HandleTokenRequest(context.Background(), bad); err == nil {
		t.Fatal("wrong verifier accepted")
	}

	if _, err := env.srv.HandleTokenRequest(context.Background(), codeRequest(testPublicClientID, code, testPublicRedirectURI)); err != nil {
		t.Errorf("legitimate redemption after failed attempt error = %v", err)
	}
}

func TestExchangeAuthorizationCode_ConfidentialClient(t *testing.T) {
	env := newTestEnv(t)
	code := env.authorize(t, testConfidentialClientID, testConfidentialRedirect)

	req := codeRequest(testConfidentialClientID, code, testConfidentialRedirect)
	req.ClientSecret = testConfidentialSecret
	if _, err := env.srv.HandleTokenRequest(context.Background(), req); err != nil {
		t.Errorf("HandleTokenRequest() error = %v", err)
	}
}

func TestExchangeAuthorizationCode_StoreFailures(t *testing.T) {
	for _, op := range []string{"Get", "Delete", "Put"} {
		t.Run(op, func(t *testing.T) {
			env := newTestEnv(t)
			code := env.authorize(t, testPublicClientID, testPublicRedirectURI)

			switch op {
			case "Get":
				env.kv.GetFunc = func(context.Context, string) ([]byte, error) { return nil, errBoom }
			case "Delete":
				env.kv.DeleteFunc = func(context.Context, string) (bool, error) { return false, errBoom }
			case "Put":
				env.kv.PutFunc = func(context.Context, string, []byte, time.Duration) error { return errBoom }
			}

			tok, err := env.srv.HandleTokenRequest(context.Background(), codeRequest(testPublicClientID, code, testPublicRedirectURI))
			if tok != nil {
				t.Error("token returned despite store failure")
			}
			assertStoreError(t, err)
		})
	}
}

func TestRefreshAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
	first, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI))
	if err != nil {
		t.Fatalf("exchange error = %v", err)
	}

	refreshReq := &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		ClientID:     testPublicClientID,
		RefreshToken: first.RefreshToken,
	}

	env.clock.Advance(2 * time.Hour)
	second, err := env.srv.HandleTokenRequest(ctx, refreshReq)
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if second.RefreshToken != "" {
		t.Errorf("refresh issued a new refresh token %q", second.RefreshToken)
	}
	if second.AccessToken == first.AccessToken {
		t.Error("refresh returned the old access token")
	}

	rec, err := env.srv.Records().GetAccessToken(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("refreshed access token not stored: %v", err)
	}
	if rec.ClientID != testPublicClientID || rec.UserID != DefaultUserID {
		t.Errorf("refreshed record = %+v", rec)
	}
	if rec.IssuedAt != env.clock.Now().UnixMilli() {
		t.Errorf("IssuedAt = %d, want current clock", rec.IssuedAt)
	}

	// The refresh token is not rotated.
	if _, err := env.srv.HandleTokenRequest(ctx, refreshReq); err != nil {
		t.Errorf("second refresh with same token error = %v", err)
	}
}

func TestRefreshAccessToken_CarriesScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := validAuthorizationRequest()
	req.Scope = "courses:read"
	location, err := env.srv.StartAuthorization(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	code := mustQueryParam(t, location, "code")

	tok, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI))
	if err != nil {
		t.Fatal(err)
	}
	refreshed, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testPublicClientID, RefreshToken: tok.RefreshToken})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := env.srv.Records().GetAccessToken(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Scope != "courses:read" {
		t.Errorf("Scope = %q, want carried forward", rec.Scope)
	}
}

func TestRefreshAccessToken_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.authorize(t, testPublicClientID, testPublicRedirectURI)
	tok, err := env.srv.HandleTokenRequest(ctx, codeRequest(testPublicClientID, code, testPublicRedirectURI))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing refresh_token", func(t *testing.T) {
		_, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testPublicClientID})
		assertOAuthError(t, err, ErrorCodeInvalidRequest, http.StatusBadRequest, "")
	})

	t.Run("unknown refresh_token", func(t *testing.T) {
		_, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testPublicClientID, RefreshToken: "mcp_rt_unknown"})
		assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "")
	})

	t.Run("access token used as refresh token", func(t *testing.T) {
		_, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testPublicClientID, RefreshToken: tok.AccessToken})
		assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "")
	})

	t.Run("issued to another client", func(t *testing.T) {
		_, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{
			GrantType:    GrantTypeRefreshToken,
			ClientID:     "refresh-only",
			RefreshToken: tok.RefreshToken,
		})
		assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "Client mismatch")
	})

	t.Run("expired", func(t *testing.T) {
		env.clock.Advance(31 * 24 * time.Hour)
		_, err := env.srv.HandleTokenRequest(ctx, &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testPublicClientID, RefreshToken: tok.RefreshToken})
		assertOAuthError(t, err, ErrorCodeInvalidGrant, http.StatusBadRequest, "")
	})
}

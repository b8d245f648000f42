package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/internal/testutil"
)

// TestOAuth2ClientInterop drives the server with golang.org/x/oauth2, the
// client most Go MCP hosts use.
func TestOAuth2ClientInterop(t *testing.T) {
	tests := []struct {
		name     string
		config   oauth2.Config
		redirect string
	}{
		{
			name: "public client",
			config: oauth2.Config{
				ClientID:    "c1",
				RedirectURL: testRedirectURI,
				Endpoint:    oauth2.Endpoint{AuthStyle: oauth2.AuthStyleInParams},
			},
		},
		{
			name: "confidential client with basic auth",
			config: oauth2.Config{
				ClientID:     "conf",
				ClientSecret: testConfSecret,
				RedirectURL:  testConfRedirect,
				Endpoint:     oauth2.Endpoint{AuthStyle: oauth2.AuthStyleInHeader},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := setupTestHandler(t, nil)
			ts := httptest.NewServer(th.mux)
			defer ts.Close()

			conf := tt.config
			conf.Endpoint.AuthURL = ts.URL + "/oauth/authorize"
			conf.Endpoint.TokenURL = ts.URL + "/oauth/token"

			_, verifier := testutil.GeneratePKCEPair()
			authURL := conf.AuthCodeURL("state-123", oauth2.S256ChallengeOption(verifier))

			noFollow := &http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
			}
			resp, err := noFollow.Get(authURL)
			if err != nil {
				t.Fatalf("authorize request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("authorize status = %d, want %d", resp.StatusCode, http.StatusFound)
			}

			location, err := url.Parse(resp.Header.Get("Location"))
			if err != nil {
				t.Fatalf("invalid Location: %v", err)
			}
			if !strings.HasPrefix(location.String(), conf.RedirectURL+"?") {
				t.Errorf("Location = %q, want redirect to %q", location, conf.RedirectURL)
			}
			if location.Query().Get("state") != "state-123" {
				t.Errorf("state = %q, want state-123", location.Query().Get("state"))
			}

			ctx := context.Background()
			token, err := conf.Exchange(ctx, location.Query().Get("code"), oauth2.VerifierOption(verifier))
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if !token.Valid() || token.RefreshToken == "" {
				t.Fatalf("Exchange() returned %+v", token)
			}
			if token.Type() != "Bearer" {
				t.Errorf("token type = %q, want Bearer", token.Type())
			}

			// Force a refresh by handing the source an expired token.
			expired := &oauth2.Token{RefreshToken: token.RefreshToken}
			refreshed, err := conf.TokenSource(ctx, expired).Token()
			if err != nil {
				t.Fatalf("refresh error = %v", err)
			}
			if refreshed.AccessToken == token.AccessToken {
				t.Error("refresh returned the old access token")
			}
			if refreshed.RefreshToken != token.RefreshToken {
				t.Error("refresh token should be kept when the server does not rotate it")
			}

			// The refreshed token opens the protected endpoint.
			protected := httptest.NewServer(th.handler.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})))
			defer protected.Close()

			resp, err = conf.Client(ctx, refreshed).Get(protected.URL + "/mcp")
			if err != nil {
				t.Fatalf("protected request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("protected status = %d, want %d", resp.StatusCode, http.StatusNoContent)
			}

			// A code cannot be exchanged twice.
			if _, err := conf.Exchange(ctx, location.Query().Get("code"), oauth2.VerifierOption(verifier)); err == nil {
				t.Error("second Exchange() should fail")
			}
		})
	}
}

package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/internal/util"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// TokenRequest holds the parameters of POST /oauth/token.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code
	Code         string
	CodeVerifier string
	RedirectURI  string

	// refresh_token
	RefreshToken string

	// ClientIP is used for auditing only.
	ClientIP string
}

// HandleTokenRequest authenticates the client and dispatches on grant type.
// Protocol failures are returned as *Error; anything else wraps
// ErrStoreUnavailable.
func (s *Server) HandleTokenRequest(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	if req.ClientID == "" {
		return nil, errInvalidRequest("Missing client_id")
	}
	if req.GrantType == "" {
		return nil, errInvalidRequest("Missing grant_type")
	}

	client, ok := s.registry.ValidateClientID(req.ClientID)
	if !ok {
		s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "unknown_client")
		return nil, errInvalidClient("Unknown client_id")
	}

	if !s.registry.ValidateClientAuthentication(client, req.ClientSecret) {
		s.Logger.Debug("Token request rejected", "reason", "client_authentication_failed", "client_id", client.ClientID)
		s.Auditor.LogAuthFailure("", client.ClientID, req.ClientIP, "client_authentication_failed")
		return nil, errInvalidClient("Client authentication failed")
	}

	if !s.registry.ValidateGrantType(client, req.GrantType) {
		return nil, errUnauthorizedClient()
	}

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.ExchangeAuthorizationCode(ctx, client, req)
	case GrantTypeRefreshToken:
		return s.RefreshAccessToken(ctx, client, req)
	default:
		return nil, errUnsupportedGrantType()
	}
}

// ExchangeAuthorizationCode redeems a code for an access and refresh token.
// client must already be authenticated. The code is deleted only after
// every binding check passes, and tokens are minted only by the caller whose
// delete actually removed it.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, client *Client, req *TokenRequest) (*oauth2.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token.exchange_code")
	defer span.End()
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, GrantTypeAuthorizationCode),
	)

	if req.Code == "" || req.CodeVerifier == "" || req.RedirectURI == "" {
		instrumentation.SetSpanError(span, ErrorCodeInvalidRequest)
		return nil, errInvalidRequest("Missing required parameters")
	}

	codePrefix := util.SafeTruncate(req.Code, logPrefixLength)

	authCode, err := s.records.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.Logger.Debug("Authorization code validation failed",
				"reason", "not_found",
				"client_id", client.ClientID,
				"code_prefix", codePrefix)
			s.Auditor.LogAuthFailure("", client.ClientID, req.ClientIP, "invalid_authorization_code")
			instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
			return nil, errInvalidGrant("Invalid or expired authorization code")
		}
		instrumentation.RecordError(span, err)
		return nil, storeError("load authorization code", err)
	}

	if authCode.ClientID != client.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"client_id", client.ClientID,
			"code_prefix", codePrefix)
		s.Auditor.LogAuthFailure(authCode.UserID, client.ClientID, req.ClientIP, "client_id_mismatch")
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("Client mismatch")
	}

	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", client.ClientID,
			"code_prefix", codePrefix)
		s.Auditor.LogAuthFailure(authCode.UserID, client.ClientID, req.ClientIP, "redirect_uri_mismatch")
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("Redirect URI mismatch")
	}

	if !s.registry.ValidateRedirectURI(client, req.RedirectURI) {
		s.Auditor.LogInvalidRedirect(client.ClientID, req.ClientIP, req.RedirectURI)
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("Redirect URI no longer allowed")
	}

	if !VerifyPKCE(req.CodeVerifier, authCode.CodeChallenge) {
		s.Auditor.LogPKCEFailure(authCode.UserID, client.ClientID, req.ClientIP)
		s.metrics.RecordPKCEValidationFailed(ctx)
		instrumentation.SetSpanError(span, "pkce_verification_failed")
		return nil, errInvalidGrant("PKCE verification failed")
	}

	existed, err := s.records.DeleteAuthorizationCode(ctx, req.Code)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeError("delete authorization code", err)
	}
	if !existed {
		// Another request redeemed (or the store expired) the code between
		// our lookup and delete.
		s.Logger.Warn("Authorization code redeemed concurrently",
			"client_id", client.ClientID,
			"code_prefix", codePrefix)
		s.Auditor.LogCodeReplay(authCode.UserID, client.ClientID, req.ClientIP)
		s.metrics.RecordCodeReuseDetected(ctx)
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrCodeReuse, true))
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("Invalid or expired authorization code")
	}

	now := s.now()
	accessToken, accessRec := s.mintToken(AccessTokenPrefix, client.ClientID, authCode.UserID, authCode.Scope, now, s.Config.AccessTokenTTL)
	refreshToken, refreshRec := s.mintToken(RefreshTokenPrefix, client.ClientID, authCode.UserID, authCode.Scope, now, s.Config.RefreshTokenTTL)

	if err := s.records.SaveAccessToken(ctx, accessToken, accessRec, s.Config.AccessTokenTTL); err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeError("save access token", err)
	}
	if err := s.records.SaveRefreshToken(ctx, refreshToken, refreshRec, s.Config.RefreshTokenTTL); err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeError("save refresh token", err)
	}

	s.Auditor.LogTokenIssued(authCode.UserID, client.ClientID, req.ClientIP, accessRec.ID)
	s.metrics.RecordCodeExchange(ctx, client.ClientID)
	instrumentation.AddOAuthFlowAttributes(span, client.ClientID, authCode.UserID, authCode.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrTokenID, accessRec.ID))
	instrumentation.SetSpanSuccess(span)

	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       time.UnixMilli(accessRec.ExpiresAt),
	}, nil
}

// RefreshAccessToken mints a new access token from a refresh token issued
// to client. The refresh token stays valid and is not returned.
func (s *Server) RefreshAccessToken(ctx context.Context, client *Client, req *TokenRequest) (*oauth2.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token.refresh")
	defer span.End()
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, GrantTypeRefreshToken),
		attribute.Bool(instrumentation.AttrTokenRotated, false),
	)

	if req.RefreshToken == "" {
		instrumentation.SetSpanError(span, ErrorCodeInvalidRequest)
		return nil, errInvalidRequest("")
	}

	now := s.now()
	stored, err := s.records.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.Logger.Debug("Refresh token validation failed",
				"reason", "not_found",
				"client_id", client.ClientID,
				"token_prefix", util.SafeTruncate(req.RefreshToken, logPrefixLength+len(RefreshTokenPrefix)))
			s.Auditor.LogAuthFailure("", client.ClientID, req.ClientIP, "invalid_refresh_token")
			instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
			return nil, errInvalidGrant("")
		}
		instrumentation.RecordError(span, err)
		return nil, storeError("load refresh token", err)
	}
	if stored.Expired(now) {
		s.Auditor.LogAuthFailure(stored.UserID, client.ClientID, req.ClientIP, "refresh_token_expired")
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("")
	}

	if stored.ClientID != client.ClientID {
		s.Logger.Debug("Refresh token validation failed",
			"reason", "client_id_mismatch",
			"client_id", client.ClientID)
		s.Auditor.LogAuthFailure(stored.UserID, client.ClientID, req.ClientIP, "client_id_mismatch")
		instrumentation.SetSpanError(span, ErrorCodeInvalidGrant)
		return nil, errInvalidGrant("Client mismatch")
	}

	accessToken, accessRec := s.mintToken(AccessTokenPrefix, stored.ClientID, stored.UserID, stored.Scope, now, s.Config.AccessTokenTTL)
	if err := s.records.SaveAccessToken(ctx, accessToken, accessRec, s.Config.AccessTokenTTL); err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeError("save access token", err)
	}

	s.Auditor.LogTokenRefreshed(stored.UserID, client.ClientID, req.ClientIP, accessRec.ID, false)
	s.metrics.RecordTokenRefresh(ctx, client.ClientID, false)
	instrumentation.AddOAuthFlowAttributes(span, client.ClientID, stored.UserID, stored.Scope)
	instrumentation.SetSpanSuccess(span)

	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      time.UnixMilli(accessRec.ExpiresAt),
	}, nil
}

func (s *Server) mintToken(prefix, clientID, userID, scope string, now time.Time, ttl time.Duration) (string, *storage.TokenRecord) {
	return prefix + generateRandomToken(), &storage.TokenRecord{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
}

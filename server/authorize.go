package server

import (
	"context"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/internal/util"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// AuthorizationRequest holds the query parameters of GET /oauth/authorize.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Scope               string

	// ClientIP is used for auditing only.
	ClientIP string
}

// StartAuthorization validates req, persists a new authorization code and
// returns the URL to redirect the user agent to. Failures have no side
// effects.
func (s *Server) StartAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize")
	defer span.End()
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
		attribute.String(instrumentation.AttrPKCEMethod, req.CodeChallengeMethod),
	)

	if req.ResponseType != "code" || req.ClientID == "" || req.RedirectURI == "" {
		instrumentation.SetSpanError(span, ErrorCodeInvalidRequest)
		return "", errInvalidRequest("Missing required parameters")
	}

	client, ok := s.registry.ValidateClientID(req.ClientID)
	if !ok {
		s.Logger.Debug("Authorization rejected", "reason", "unknown_client", "client_id", req.ClientID)
		s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "unknown_client")
		instrumentation.SetSpanError(span, ErrorCodeInvalidClient)
		return "", errInvalidClient("Unknown client_id")
	}

	// The redirect URI is checked before anything else about the request so
	// that an unregistered URI can never receive a code.
	if !s.registry.ValidateRedirectURI(client, req.RedirectURI) {
		s.Auditor.LogInvalidRedirect(client.ClientID, req.ClientIP, req.RedirectURI)
		instrumentation.SetSpanError(span, "invalid_redirect_uri")
		return "", errInvalidRequest("Invalid redirect_uri for this client")
	}

	if req.CodeChallenge == "" || req.CodeChallengeMethod != PKCEMethodS256 {
		s.Logger.Debug("Authorization rejected",
			"reason", "pkce_required",
			"client_id", client.ClientID,
			"code_challenge_method", req.CodeChallengeMethod)
		instrumentation.SetSpanError(span, "pkce_required")
		return "", errInvalidRequest("PKCE required")
	}

	if !s.registry.ValidateGrantType(client, GrantTypeAuthorizationCode) {
		instrumentation.SetSpanError(span, ErrorCodeUnauthorizedClient)
		return "", errUnauthorizedClient()
	}

	redirectURL, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", errInvalidRequest("Invalid redirect_uri for this client")
	}

	code := generateRandomToken()
	rec := &storage.AuthorizationCode{
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scope:               req.Scope,
		UserID:              s.Config.DefaultUserID,
		CreatedAt:           s.now().UnixMilli(),
	}
	if err := s.records.SaveAuthorizationCode(ctx, code, rec, s.Config.AuthorizationCodeTTL); err != nil {
		instrumentation.RecordError(span, err)
		return "", storeError("save authorization code", err)
	}

	params := url.Values{"code": {code}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	redirectURL.RawQuery = setQueryParams(redirectURL.RawQuery, params)

	s.Logger.Debug("Authorization code issued",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(code, logPrefixLength))
	s.Auditor.LogCodeIssued(rec.UserID, client.ClientID, req.ClientIP, req.Scope)
	s.metrics.RecordCodeIssued(ctx, client.ClientID)
	instrumentation.AddOAuthFlowAttributes(span, client.ClientID, rec.UserID, req.Scope)
	instrumentation.SetSpanSuccess(span)

	return redirectURL.String(), nil
}

// setQueryParams sets params on rawQuery without re-encoding it. Existing
// parameters keep their order and encoding; any previous value of a set key
// is dropped and the new values are appended.
func setQueryParams(rawQuery string, params url.Values) string {
	var parts []string
	if rawQuery != "" {
		for _, part := range strings.Split(rawQuery, "&") {
			key, _, _ := strings.Cut(part, "=")
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if _, replaced := params[key]; replaced {
				continue
			}
			parts = append(parts, part)
		}
	}
	// Encode sorts, so code always precedes state.
	if encoded := params.Encode(); encoded != "" {
		parts = append(parts, encoded)
	}
	return strings.Join(parts, "&")
}

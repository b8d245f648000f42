package server

import (
	"context"
	"errors"

	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// Authentication methods reported in AuthContext.
const (
	AuthMethodOAuth  = "oauth"
	AuthMethodAPIKey = "api-key"
)

// AuthContext describes the principal behind an authenticated request.
type AuthContext struct {
	UserID      string
	AuthMethod  string
	ClientID    string
	Scope       string
	Permissions []string
}

// ValidateAccessToken resolves a bearer token. Unknown or expired tokens
// return ErrInvalidToken.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	rec, err := s.records.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.RecordBearerValidation(ctx, AuthMethodOAuth, "invalid")
			return nil, ErrInvalidToken
		}
		s.metrics.RecordBearerValidation(ctx, AuthMethodOAuth, "error")
		return nil, storeError("load access token", err)
	}
	if rec.Expired(s.now()) {
		s.metrics.RecordBearerValidation(ctx, AuthMethodOAuth, "expired")
		return nil, ErrInvalidToken
	}

	s.metrics.RecordBearerValidation(ctx, AuthMethodOAuth, "valid")
	return &AuthContext{
		UserID:     rec.UserID,
		AuthMethod: AuthMethodOAuth,
		ClientID:   rec.ClientID,
		Scope:      rec.Scope,
	}, nil
}

// ValidateAPIKey resolves an X-API-Key value. Unknown keys return
// ErrInvalidToken.
func (s *Server) ValidateAPIKey(ctx context.Context, key string) (*AuthContext, error) {
	if key == "" {
		return nil, ErrInvalidToken
	}

	rec, err := s.records.GetAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.RecordBearerValidation(ctx, AuthMethodAPIKey, "invalid")
			return nil, ErrInvalidToken
		}
		s.metrics.RecordBearerValidation(ctx, AuthMethodAPIKey, "error")
		return nil, storeError("load api key", err)
	}

	s.metrics.RecordBearerValidation(ctx, AuthMethodAPIKey, "valid")
	return &AuthContext{
		UserID:      rec.UserID,
		AuthMethod:  AuthMethodAPIKey,
		Permissions: rec.Permissions,
	}, nil
}

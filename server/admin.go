package server

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// RegisterClient creates a client with a generated client_id and adds it to
// the registry. For a confidential client the plaintext secret is returned
// once and only its bcrypt hash is kept.
func (s *Server) RegisterClient(ctx context.Context, clientName string, redirectURIs, grantTypes []string, confidential bool) (*Client, string, error) {
	if len(redirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}
	for _, u := range redirectURIs {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, "", fmt.Errorf("invalid redirect URI %q", u)
		}
		if parsed.Fragment != "" {
			return nil, "", fmt.Errorf("redirect URI %q must not contain a fragment", u)
		}
	}

	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}
	}
	for _, g := range grantTypes {
		if g != GrantTypeAuthorizationCode && g != GrantTypeRefreshToken {
			return nil, "", fmt.Errorf("unsupported grant type %q", g)
		}
	}

	client := &Client{
		ClientID:       uuid.NewString(),
		ClientName:     clientName,
		RedirectURIs:   slices.Clone(redirectURIs),
		GrantTypes:     slices.Clone(grantTypes),
		IsConfidential: confidential,
	}

	var secret string
	if confidential {
		secret = generateRandomToken()
		hash, err := security.HashSecret(secret)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.ClientSecretHash = hash
	}

	s.registry.Register(client)

	s.Logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_name", clientName,
		"confidential", confidential)
	s.Auditor.LogClientRegistered(client.ClientID, confidential, "admin")
	s.metrics.RecordClientRegistration(ctx, confidential)

	return client.clone(), secret, nil
}

// CreateAPIKey stores a new API key for userID. A ttl <= 0 never expires.
// The key is returned once and never logged.
func (s *Server) CreateAPIKey(ctx context.Context, userID string, permissions []string, ttl time.Duration) (string, *storage.APIKey, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}

	key := APIKeyPrefix + generateRandomToken()
	rec := &storage.APIKey{
		ID:          uuid.NewString(),
		UserID:      userID,
		Permissions: slices.Clone(permissions),
		CreatedAt:   s.now().UnixMilli(),
	}
	if rec.Permissions == nil {
		rec.Permissions = []string{}
	}

	if err := s.records.SaveAPIKey(ctx, key, rec, ttl); err != nil {
		return "", nil, storeError("save api key", err)
	}

	s.Auditor.LogAPIKeyCreated(userID, rec.ID, rec.Permissions)
	return key, rec, nil
}

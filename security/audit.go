package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor writes security events to a structured logger. User identifiers
// are hashed; client identifiers are public and logged as-is.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates an Auditor. A nil logger falls back to slog.Default().
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event is a single audit record.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent writes event if auditing is enabled. A nil Auditor is a no-op.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	attrs := []any{
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"timestamp", event.Timestamp,
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}
	a.logger.Info("security_audit", attrs...)
}

// LogCodeIssued records a freshly minted authorization code. The code
// itself is never logged.
func (a *Auditor) LogCodeIssued(userID, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details:   map[string]any{"scope": scope},
	})
}

// LogTokenIssued records an access/refresh token pair minted from a code.
func (a *Auditor) LogTokenIssued(userID, clientID, ipAddress, tokenID string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details:   map[string]any{"token_id": tokenID},
	})
}

// LogTokenRefreshed records an access token minted from a refresh token.
// rotated is always false while refresh tokens are reusable; it is kept in
// the record so dashboards do not change shape if rotation is introduced.
func (a *Auditor) LogTokenRefreshed(userID, clientID, ipAddress, tokenID string, rotated bool) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_id": tokenID,
			"rotated":  rotated,
		},
	})
}

// LogAuthFailure records a failed client authentication or grant check.
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details:   map[string]any{"reason": reason},
	})
}

// LogInvalidRedirect records an unregistered redirect_uri.
func (a *Auditor) LogInvalidRedirect(clientID, ipAddress, redirectURI string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details:   map[string]any{"redirect_uri": redirectURI},
	})
}

// LogPKCEFailure records a code_verifier that did not match.
func (a *Auditor) LogPKCEFailure(userID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventPKCEValidationFailed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeReplay records a second redemption of the same authorization code.
func (a *Auditor) LogCodeReplay(userID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeReplay,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details:   map[string]any{"severity": "high"},
	})
}

// LogRateLimitExceeded records a rate limit rejection.
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details:   map[string]any{"endpoint": endpoint},
	})
}

// LogClientRegistered records a registry upsert.
func (a *Auditor) LogClientRegistered(clientID string, confidential bool, source string) {
	a.LogEvent(Event{
		Type:     EventClientRegistered,
		ClientID: clientID,
		Details: map[string]any{
			"confidential": confidential,
			"source":       source,
		},
	})
}

// LogAPIKeyCreated records API key provisioning. keyID is the public id of
// the key, not the key material.
func (a *Auditor) LogAPIKeyCreated(userID, keyID string, permissions []string) {
	a.LogEvent(Event{
		Type:   EventAPIKeyCreated,
		UserID: userID,
		Details: map[string]any{
			"key_id":      keyID,
			"permissions": permissions,
		},
	})
}

// LogBearerRejected records a rejected request on a protected endpoint.
func (a *Auditor) LogBearerRejected(ipAddress, method, reason string) {
	a.LogEvent(Event{
		Type:      EventBearerRejected,
		IPAddress: ipAddress,
		Details: map[string]any{
			"auth_method": method,
			"reason":      reason,
		},
	})
}

// hashForLogging returns the first 16 hex characters of the SHA-256 of s.
func hashForLogging(s string) string {
	if s == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

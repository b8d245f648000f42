package security

// Event types written by the Auditor.
const (
	// EventAuthorizationCodeIssued is logged when /oauth/authorize mints a code.
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReplay is logged when a code that was already
	// redeemed (or lost a concurrent redemption race) is presented again.
	EventAuthorizationCodeReplay = "authorization_code_replay"

	// EventTokenIssued is logged when an access/refresh token pair is minted
	// from an authorization code.
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token mints a new access token.
	EventTokenRefreshed = "token_refreshed"

	// EventAuthFailure is logged when client authentication or a grant
	// binding check fails.
	EventAuthFailure = "auth_failure"

	// EventInvalidRedirect is logged when a redirect_uri is not registered
	// for the client.
	EventInvalidRedirect = "invalid_redirect"

	// EventPKCEValidationFailed is logged when a code_verifier does not match
	// the stored challenge.
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventRateLimitExceeded is logged when an identifier runs out of tokens.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventClientRegistered is logged when a client is added to the registry.
	EventClientRegistered = "client_registered"

	// EventAPIKeyCreated is logged when an API key is provisioned.
	EventAPIKeyCreated = "api_key_created" //nolint:gosec // event name, not a credential

	// EventBearerRejected is logged when a protected endpoint rejects a
	// bearer token or API key.
	EventBearerRejected = "bearer_rejected"
)

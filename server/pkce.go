package server

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only supported code_challenge_method.
const PKCEMethodS256 = "S256"

// VerifyPKCE reports whether base64url-nopad(SHA-256(verifier)) equals
// challenge. The plain method is never accepted.
func VerifyPKCE(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

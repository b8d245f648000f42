package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Known PKCE pair: KnownChallenge is base64url(SHA-256(KnownVerifier)).
const (
	KnownVerifier  = "test-verifier"
	KnownChallenge = "JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString returns a URL-safe random string of length bytes of
// entropy, base64 encoded.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// GeneratePKCEPair returns a fresh S256 challenge and its verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// HTTPRequest builds a request for handler tests.
type HTTPRequest struct {
	method  string
	url     string
	headers map[string]string
	body    string
}

// NewHTTPRequest starts building a request.
func NewHTTPRequest(method, target string) *HTTPRequest {
	return &HTTPRequest{
		method:  method,
		url:     target,
		headers: make(map[string]string),
	}
}

// WithHeader sets a header.
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.headers[key] = value
	return r
}

// WithBody sets the request body.
func (r *HTTPRequest) WithBody(body string) *HTTPRequest {
	r.body = body
	return r
}

// WithForm sets a form-encoded body and its Content-Type.
func (r *HTTPRequest) WithForm(form map[string]string) *HTTPRequest {
	values := make([]string, 0, len(form))
	for k, v := range form {
		values = append(values, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	r.body = strings.Join(values, "&")
	return r.WithHeader("Content-Type", "application/x-www-form-urlencoded")
}

// Do serves the request on handler and returns the recorded response.
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.url, body)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

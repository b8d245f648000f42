package server

import (
	"slices"
	"sort"
	"sync"

	"github.com/a-ariff/canvas-student-mcp-server/security"
)

// Grant types.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// DefaultClientID is the public client every deployment trusts.
const DefaultClientID = "canvas-mcp-client"

// Client is a registered relying party. Registered clients are never
// mutated; Register replaces the whole value.
type Client struct {
	ClientID   string
	ClientName string

	// ClientSecret is compared in constant time. ClientSecretHash, when set,
	// is a bcrypt hash and takes precedence.
	ClientSecret     string
	ClientSecretHash string

	RedirectURIs   []string
	GrantTypes     []string
	IsConfidential bool
}

func (c *Client) clone() *Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	return &cp
}

// DefaultClient returns the built-in public client used by local MCP tools.
func DefaultClient() *Client {
	return &Client{
		ClientID:   DefaultClientID,
		ClientName: "Canvas MCP Client",
		RedirectURIs: []string{
			"http://localhost:3000/callback",
			"http://localhost:3000/oauth/callback",
			"https://localhost:3000/callback",
			"https://localhost:3000/oauth/callback",
		},
		GrantTypes: []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
	}
}

// Registry is the in-memory set of trusted clients. Reads are concurrent;
// Register is an administrative operation and last write wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates a registry seeded with clients.
func NewRegistry(clients ...*Client) *Registry {
	r := &Registry{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register inserts or replaces the client with the same ClientID.
func (r *Registry) Register(client *Client) {
	if client == nil || client.ClientID == "" {
		return
	}
	cp := client.clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[cp.ClientID] = cp
}

// ValidateClientID looks up id exactly, with no normalization.
func (r *Registry) ValidateClientID(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// List returns a snapshot of all clients sorted by ClientID.
func (r *Registry) List() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ValidateRedirectURI reports whether uri is byte-for-byte one of the
// client's registered redirect URIs.
func (r *Registry) ValidateRedirectURI(client *Client, uri string) bool {
	if client == nil {
		return false
	}
	return slices.Contains(client.RedirectURIs, uri)
}

// ValidateGrantType reports whether the client may use grant.
func (r *Registry) ValidateGrantType(client *Client, grant string) bool {
	if client == nil {
		return false
	}
	return slices.Contains(client.GrantTypes, grant)
}

// ValidateClientAuthentication always passes a public client. A confidential
// client must present a non-empty secret matching its configured secret; one
// without a configured secret fails closed.
func (r *Registry) ValidateClientAuthentication(client *Client, providedSecret string) bool {
	if client == nil {
		return false
	}
	if !client.IsConfidential {
		return true
	}
	if providedSecret == "" {
		return false
	}
	if client.ClientSecretHash != "" {
		return security.CompareSecretHash(client.ClientSecretHash, providedSecret)
	}
	return security.SecretsEqual(providedSecret, client.ClientSecret)
}

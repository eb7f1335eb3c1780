package tokengatetest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultClientID     = "tokengate-client"
	DefaultClientSecret = "tokengate-secret"
)

// Provider is a minimal OpenID provider: discovery, JWKS, client credentials
// token endpoint and RFC 7662 introspection, all backed by one RSA key.
type Provider struct {
	KeyID        string
	ClientID     string
	ClientSecret string

	server *httptest.Server
	key    *rsa.PrivateKey

	mu                  sync.Mutex
	revoked             map[string]bool
	accessTokens        map[string]bool
	introspectionStatus int
	jwksStatus          int
}

// NewProvider starts a provider that is shut down when t finishes.
func NewProvider(t testing.TB) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	p := &Provider{
		KeyID:        "test-key-1",
		ClientID:     DefaultClientID,
		ClientSecret: DefaultClientSecret,
		key:          key,
		revoked:      make(map[string]bool),
		accessTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /jwks", p.handleJWKS)
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("POST /introspect", p.handleIntrospect)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *Provider) Issuer() string           { return p.server.URL }
func (p *Provider) JWKSURL() string          { return p.server.URL + "/jwks" }
func (p *Provider) TokenURL() string         { return p.server.URL + "/token" }
func (p *Provider) IntrospectionURL() string { return p.server.URL + "/introspect" }
func (p *Provider) Client() *http.Client     { return p.server.Client() }

// Key returns the provider's signing key.
func (p *Provider) Key() *rsa.PrivateKey { return p.key }

// Close stops the server before the test ends, to simulate an outage.
func (p *Provider) Close() { p.server.Close() }

// IDToken signs a token for subject and audience that expires after ttl.
// A negative ttl yields an expired token.
func (p *Provider) IDToken(t testing.TB, subject, audience string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	return p.Sign(t, jwt.MapClaims{
		"iss": p.Issuer(),
		"sub": subject,
		"aud": audience,
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
	})
}

// Sign signs claims with the provider key.
func (p *Provider) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return SignWithKey(t, p.key, p.KeyID, claims)
}

// SignWithKey signs claims with an arbitrary RSA key using RS256.
func SignWithKey(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// Revoke makes introspection report raw as inactive.
func (p *Provider) Revoke(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[raw] = true
}

// FailIntrospection makes the introspection endpoint answer with status.
// Zero restores normal behaviour.
func (p *Provider) FailIntrospection(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.introspectionStatus = status
}

// FailJWKS makes the JWKS endpoint answer with status. Zero restores normal behaviour.
func (p *Provider) FailJWKS(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksStatus = status
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                p.server.URL + "/authorize",
		"token_endpoint":                        p.TokenURL(),
		"jwks_uri":                              p.JWKSURL(),
		"introspection_endpoint":                p.IntrospectionURL(),
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *Provider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	status := p.jwksStatus
	p.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &p.key.PublicKey,
			KeyID:     p.KeyID,
			Algorithm: "RS256",
			Use:       "sig",
		}},
	})
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	id, secret, ok := basicAuth(r)
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if id != p.ClientID || secret != p.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	accessToken := uuid.NewString()
	p.mu.Lock()
	p.accessTokens[accessToken] = true
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (p *Provider) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !p.clientAuthenticated(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	p.mu.Lock()
	status := p.introspectionStatus
	p.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "server_error", "error_description": "introspection unavailable"})
		return
	}

	raw := r.PostFormValue("token")
	p.mu.Lock()
	revoked := p.revoked[raw]
	p.mu.Unlock()

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return &p.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || revoked {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}

	claims["active"] = true
	claims["client_id"] = p.ClientID
	claims["token_type"] = "Bearer"
	writeJSON(w, http.StatusOK, claims)
}

func (p *Provider) clientAuthenticated(r *http.Request) bool {
	if id, secret, ok := basicAuth(r); ok {
		return id == p.ClientID && secret == p.ClientSecret
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessTokens[bearer]
}

// basicAuth decodes RFC 6749 form-encoded Basic credentials.
func basicAuth(r *http.Request) (string, string, bool) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if v, err := url.QueryUnescape(id); err == nil {
		id = v
	}
	if v, err := url.QueryUnescape(secret); err == nil {
		secret = v
	}
	return id, secret, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

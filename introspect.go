package tokengate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/theadell/tokengate/internal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// RetrievalError reports a failed introspection round trip. It is an oracle
// failure, never an invalid credential.
type RetrievalError = internal.RetrievalError

// Introspector is an Oracle backed by an RFC 7662 introspection endpoint.
// It suits opaque tokens and deployments that need revocation to take effect
// immediately.
type Introspector struct {
	endpoint      string
	client        *http.Client
	clientID      string
	clientSecret  string
	tokenTypeHint string
	credentials   *clientcredentials.Config
}

type IntrospectorOption func(*Introspector)

// WithIntrospectionHTTPClient sets the HTTP client used to reach the endpoint.
func WithIntrospectionHTTPClient(client *http.Client) IntrospectorOption {
	return func(i *Introspector) {
		if client != nil {
			i.client = client
		}
	}
}

// WithClientAuth authenticates to the endpoint with HTTP Basic credentials.
func WithClientAuth(clientID, clientSecret string) IntrospectorOption {
	return func(i *Introspector) {
		i.clientID = clientID
		i.clientSecret = clientSecret
		i.credentials = nil
	}
}

// WithClientCredentials authenticates to the endpoint with a bearer token
// obtained through the OAuth2 client credentials grant.
func WithClientCredentials(cfg *clientcredentials.Config) IntrospectorOption {
	return func(i *Introspector) {
		i.credentials = cfg
		i.clientID, i.clientSecret = "", ""
	}
}

// WithTokenTypeHint sets the token_type_hint sent with each request.
func WithTokenTypeHint(hint string) IntrospectorOption {
	return func(i *Introspector) {
		i.tokenTypeHint = hint
	}
}

func NewIntrospector(endpoint string, options ...IntrospectorOption) (*Introspector, error) {
	if endpoint == "" {
		return nil, errors.New("invalid config: introspection endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, err
	}

	i := &Introspector{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range options {
		opt(i)
	}

	if i.credentials != nil {
		base := i.client
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		i.client = i.credentials.Client(ctx)
		i.client.Timeout = base.Timeout
	}
	return i, nil
}

// VerifyToken implements Oracle. Inactive tokens are refused with
// CodeIDTokenRevoked.
func (i *Introspector) VerifyToken(ctx context.Context, rawToken string) (*Token, error) {
	if rawToken == "" {
		return nil, verificationError(CodeArgumentError, "no token provided", ErrMissingCredential)
	}

	resp, err := internal.IntrospectToken(ctx, i.client, i.endpoint, internal.IntrospectionRequest{
		Token:         rawToken,
		TokenTypeHint: i.tokenTypeHint,
		ClientID:      i.clientID,
		ClientSecret:  i.clientSecret,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Active {
		return nil, verificationError(CodeIDTokenRevoked, "token is not active", nil)
	}
	return NewToken(rawToken, resp.Claims), nil
}

package tokengate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type OAuth2ServerMetadata struct {
	Issuer                   string   `json:"issuer"`
	AuthEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint            string   `json:"token_endpoint"`
	DeviceAuthEndpoint       string   `json:"device_authorization_endpoint"`
	UserInfoEndpoint         string   `json:"userinfo_endpoint"`
	JWKURI                   string   `json:"jwks_uri"`
	IntrospectionEndpoint    string   `json:"introspection_endpoint"`
	IntrospectionAuthMethods []string `json:"introspection_endpoint_auth_methods_supported"`
	SigningAlgs              []string `json:"id_token_signing_alg_values_supported"`
}

// Endpoint returns the `x/oauth2` endpoint described by the metadata.
func (m *OAuth2ServerMetadata) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       m.AuthEndpoint,
		DeviceAuthURL: m.DeviceAuthEndpoint,
		TokenURL:      m.TokenEndpoint,
	}
}

// DiscoverMetadata fetches the OpenID Connect discovery document of issuer.
// The issuer advertised by the document must equal issuer.
func DiscoverMetadata(ctx context.Context, client *http.Client, issuer string) (*OAuth2ServerMetadata, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailure, err)
	}

	var metadata OAuth2ServerMetadata
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("%w: failed to decode server metadata: %w", ErrDiscoveryFailure, err)
	}
	return &metadata, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/theadell/tokengate"
	"github.com/theadell/tokengate/internal/config"
	"golang.org/x/oauth2/clientcredentials"
)

// newOracle builds the oracle selected by cfg.Mode. JWKS refreshes run until ctx is done.
func newOracle(ctx context.Context, cfg config.Config, client *http.Client, logger *slog.Logger) (tokengate.Oracle, error) {
	opts := []tokengate.Option{
		tokengate.WithHTTPClient(client),
		tokengate.WithLeeway(cfg.Leeway),
		tokengate.WithLogger(logger),
	}
	if aud := cfg.Audiences(); len(aud) > 0 {
		opts = append(opts, tokengate.WithAudience(aud...))
	}

	switch cfg.Mode {
	case config.ModeDiscovery:
		return tokengate.NewFromDiscovery(ctx, cfg.Issuer, opts...)
	case config.ModeFirebase:
		return tokengate.NewFirebase(ctx, cfg.ProjectID, opts...)
	case config.ModeJWKS:
		if cfg.Issuer != "" {
			opts = append(opts, tokengate.WithIssuer(cfg.Issuer))
		}
		return tokengate.NewFromJWKS(ctx, cfg.JWKSURI, opts...)
	case config.ModeIntrospection:
		return newIntrospector(ctx, cfg, client)
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func newIntrospector(ctx context.Context, cfg config.Config, client *http.Client) (*tokengate.Introspector, error) {
	endpoint := cfg.IntrospectionURL
	if endpoint == "" {
		metadata, err := tokengate.DiscoverMetadata(ctx, client, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		if metadata.IntrospectionEndpoint == "" {
			return nil, fmt.Errorf("%w: metadata has no introspection_endpoint", tokengate.ErrDiscoveryFailure)
		}
		endpoint = metadata.IntrospectionEndpoint
	}

	opts := []tokengate.IntrospectorOption{
		tokengate.WithIntrospectionHTTPClient(client),
		tokengate.WithTokenTypeHint("access_token"),
	}
	if cfg.TokenURL != "" {
		opts = append(opts, tokengate.WithClientCredentials(&clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}))
	} else {
		opts = append(opts, tokengate.WithClientAuth(cfg.ClientID, cfg.ClientSecret))
	}
	return tokengate.NewIntrospector(endpoint, opts...)
}

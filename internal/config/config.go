// Package config loads the tokengate command's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

type Mode string

const (
	ModeDiscovery     Mode = "discovery"
	ModeFirebase      Mode = "firebase"
	ModeJWKS          Mode = "jwks"
	ModeIntrospection Mode = "introspection"
)

type Config struct {
	// Addr to listen on. ENV: TOKENGATE_ADDR
	Addr string `env:"TOKENGATE_ADDR,default=:8080"`
	// Upstream is proxied to for verified requests. When empty a built-in
	// /whoami handler answers instead. ENV: TOKENGATE_UPSTREAM
	Upstream string `env:"TOKENGATE_UPSTREAM"`

	Mode      Mode   `env:"TOKENGATE_MODE,default=discovery"`
	Issuer    string `env:"TOKENGATE_ISSUER"`
	Audience  string `env:"TOKENGATE_AUDIENCE"`
	ProjectID string `env:"TOKENGATE_PROJECT_ID"`
	JWKSURI   string `env:"TOKENGATE_JWKS_URI"`

	IntrospectionURL string `env:"TOKENGATE_INTROSPECTION_URL"`
	ClientID         string `env:"TOKENGATE_CLIENT_ID"`
	ClientSecret     string `env:"TOKENGATE_CLIENT_SECRET"`
	// TokenURL switches introspection client auth from Basic to the client
	// credentials grant. ENV: TOKENGATE_TOKEN_URL
	TokenURL string `env:"TOKENGATE_TOKEN_URL"`

	// Bearer strips the "Bearer " scheme before verification. ENV: TOKENGATE_BEARER
	Bearer   bool          `env:"TOKENGATE_BEARER,default=true"`
	Leeway   time.Duration `env:"TOKENGATE_LEEWAY,default=60s"`
	LogLevel string        `env:"TOKENGATE_LOG_LEVEL,default=info"`
}

// Load decodes the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings required by the selected mode are present.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDiscovery:
		if c.Issuer == "" {
			errs = append(errs, errors.New("TOKENGATE_ISSUER is required in discovery mode"))
		}
	case ModeFirebase:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("TOKENGATE_PROJECT_ID is required in firebase mode"))
		}
	case ModeJWKS:
		if c.JWKSURI == "" {
			errs = append(errs, errors.New("TOKENGATE_JWKS_URI is required in jwks mode"))
		}
	case ModeIntrospection:
		if c.IntrospectionURL == "" && c.Issuer == "" {
			errs = append(errs, errors.New("TOKENGATE_INTROSPECTION_URL or TOKENGATE_ISSUER is required in introspection mode"))
		}
		if c.ClientID == "" {
			errs = append(errs, errors.New("TOKENGATE_CLIENT_ID is required in introspection mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TOKENGATE_MODE %q", c.Mode))
	}

	if c.Upstream != "" {
		if u, err := url.Parse(c.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("TOKENGATE_UPSTREAM %q is not an absolute URL", c.Upstream))
		}
	}
	if c.Leeway < 0 {
		errs = append(errs, errors.New("TOKENGATE_LEEWAY must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Audiences splits the comma separated audience list.
func (c Config) Audiences() []string {
	var out []string
	for _, a := range strings.Split(c.Audience, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("TOKENGATE_LOG_LEVEL: %w", err)
	}
	return level, nil
}

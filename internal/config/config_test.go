package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKENGATE_ISSUER", "https://issuer.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want no error", err)
	}
	want := Config{
		Addr:     ":8080",
		Mode:     ModeDiscovery,
		Issuer:   "https://issuer.example.com",
		Bearer:   true,
		Leeway:   60 * time.Second,
		LogLevel: "info",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKENGATE_ADDR", ":9090")
	t.Setenv("TOKENGATE_MODE", "introspection")
	t.Setenv("TOKENGATE_INTROSPECTION_URL", "https://issuer.example.com/introspect")
	t.Setenv("TOKENGATE_CLIENT_ID", "gate")
	t.Setenv("TOKENGATE_CLIENT_SECRET", "s3cret")
	t.Setenv("TOKENGATE_BEARER", "false")
	t.Setenv("TOKENGATE_LEEWAY", "5s")
	t.Setenv("TOKENGATE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want no error", err)
	}
	if got, want := cfg.Mode, ModeIntrospection; got != want {
		t.Errorf("Mode = %q; want %q", got, want)
	}
	if cfg.Bearer {
		t.Error("Bearer = true; want false")
	}
	if got, want := cfg.Leeway, 5*time.Second; got != want {
		t.Errorf("Leeway = %v; want %v", got, want)
	}
	level, err := cfg.Level()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v; want %v", level, err, slog.LevelDebug)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Addr: ":8080", Leeway: time.Minute, LogLevel: "info"}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "discovery ok", mutate: func(c *Config) { c.Mode = ModeDiscovery; c.Issuer = "https://i" }},
		{name: "discovery without issuer", mutate: func(c *Config) { c.Mode = ModeDiscovery }, wantErr: "TOKENGATE_ISSUER"},
		{name: "firebase without project", mutate: func(c *Config) { c.Mode = ModeFirebase }, wantErr: "TOKENGATE_PROJECT_ID"},
		{name: "jwks without uri", mutate: func(c *Config) { c.Mode = ModeJWKS }, wantErr: "TOKENGATE_JWKS_URI"},
		{name: "introspection via issuer", mutate: func(c *Config) { c.Mode = ModeIntrospection; c.Issuer = "https://i"; c.ClientID = "gate" }},
		{name: "introspection without client", mutate: func(c *Config) { c.Mode = ModeIntrospection; c.IntrospectionURL = "https://i/introspect" }, wantErr: "TOKENGATE_CLIENT_ID"},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "saml" }, wantErr: "unknown TOKENGATE_MODE"},
		{name: "relative upstream", mutate: func(c *Config) { c.Mode = ModeJWKS; c.JWKSURI = "https://i/jwks"; c.Upstream = "/backend" }, wantErr: "TOKENGATE_UPSTREAM"},
		{name: "negative leeway", mutate: func(c *Config) { c.Mode = ModeJWKS; c.JWKSURI = "https://i/jwks"; c.Leeway = -time.Second }, wantErr: "TOKENGATE_LEEWAY"},
		{name: "bad log level", mutate: func(c *Config) { c.Mode = ModeJWKS; c.JWKSURI = "https://i/jwks"; c.LogLevel = "loud" }, wantErr: "TOKENGATE_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v; want no error", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v; want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestAudiences(t *testing.T) {
	cfg := Config{Audience: " api, web ,,"}
	if diff := cmp.Diff([]string{"api", "web"}, cfg.Audiences()); diff != "" {
		t.Errorf("Audiences() mismatch (-want +got):\n%s", diff)
	}
	if got := (Config{}).Audiences(); got != nil {
		t.Errorf("Audiences() = %v; want nil", got)
	}
}

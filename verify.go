package tokengate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

// JWTVerifier is an Oracle for signed JWT ID tokens.
type JWTVerifier struct {
	config   *config
	keyfunc  func(ctx context.Context) jwt.Keyfunc
	metadata *OAuth2ServerMetadata
}

type config struct {
	Issuer      string
	Audience    []string
	AllowedAlgs []string
	Leeway      time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
	Logger      *slog.Logger
}

type Option func(*config)

func defaultConfig() *config {
	return &config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Now:    time.Now,
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithIssuer requires the "iss" claim to equal issuer.
func WithIssuer(issuer string) Option {
	return func(c *config) {
		c.Issuer = issuer
	}
}

// WithAudience requires the "aud" claim to contain at least one of audience.
func WithAudience(audience ...string) Option {
	return func(c *config) {
		c.Audience = append([]string(nil), audience...)
	}
}

// WithAllowedAlgs restricts accepted signing algorithms. Defaults to RS256.
func WithAllowedAlgs(algs ...string) Option {
	return func(c *config) {
		if len(algs) > 0 {
			c.AllowedAlgs = append([]string(nil), algs...)
		}
	}
}

// WithLeeway sets the clock skew tolerated on exp, nbf and iat.
func WithLeeway(d time.Duration) Option {
	return func(c *config) {
		c.Leeway = d
	}
}

// WithHTTPClient sets a custom HTTP client for discovery and JWKS fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// WithClock overrides the time source used for time-based claims.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithLogger sets the logger used for background JWKS refresh failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// NewFromKeyfunc returns a verifier that resolves signing keys through kf.
func NewFromKeyfunc(kf jwt.Keyfunc, options ...Option) (*JWTVerifier, error) {
	if kf == nil {
		return nil, ErrNoKeyfunc
	}
	cfg := defaultConfig()
	for _, opt := range options {
		opt(cfg)
	}
	return &JWTVerifier{
		config:  cfg,
		keyfunc: func(context.Context) jwt.Keyfunc { return kf },
	}, nil
}

// NewFromJWKS returns a verifier whose keys are loaded from jwksURI and refreshed
// in the background until ctx is done. The first fetch must succeed.
func NewFromJWKS(ctx context.Context, jwksURI string, options ...Option) (*JWTVerifier, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		opt(cfg)
	}
	kf, err := newJWKSKeyfunc(ctx, cfg, jwksURI)
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{config: cfg, keyfunc: kf.KeyfuncCtx}, nil
}

// NewFromDiscovery discovers issuer's metadata via OpenID Connect discovery and
// verifies tokens against its JWKS. The issuer claim is enforced unless
// overridden with WithIssuer.
func NewFromDiscovery(ctx context.Context, issuer string, options ...Option) (*JWTVerifier, error) {
	cfg := defaultConfig()
	cfg.Issuer = issuer
	for _, opt := range options {
		opt(cfg)
	}

	metadata, err := DiscoverMetadata(ctx, cfg.HTTPClient, issuer)
	if err != nil {
		return nil, err
	}
	if metadata.JWKURI == "" {
		return nil, fmt.Errorf("%w: metadata has no jwks_uri", ErrDiscoveryFailure)
	}

	kf, err := newJWKSKeyfunc(ctx, cfg, metadata.JWKURI)
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{config: cfg, keyfunc: kf.KeyfuncCtx, metadata: metadata}, nil
}

// NewFirebase verifies Firebase Authentication ID tokens issued for projectID.
func NewFirebase(ctx context.Context, projectID string, options ...Option) (*JWTVerifier, error) {
	if projectID == "" {
		return nil, errors.New("invalid config: firebase project id is required")
	}
	options = append([]Option{WithAudience(projectID)}, options...)
	return NewFromDiscovery(ctx, firebaseIssuerPrefix+projectID, options...)
}

// Metadata returns the discovered server metadata, or nil when the verifier
// was not built through discovery.
func (v *JWTVerifier) Metadata() *OAuth2ServerMetadata {
	return v.metadata
}

// VerifyToken implements Oracle.
func (v *JWTVerifier) VerifyToken(ctx context.Context, rawToken string) (*Token, error) {
	if rawToken == "" {
		return nil, verificationError(CodeArgumentError, "no token provided", ErrMissingCredential)
	}

	parsed, err := jwt.NewParser(v.parserOptions()...).Parse(rawToken, v.keyfunc(ctx))
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return nil, verificationError(CodeInvalidIDToken, "token has no subject", jwt.ErrTokenRequiredClaimMissing)
	}
	return NewToken(rawToken, claims), nil
}

func (v *JWTVerifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.config.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.config.Leeway),
		jwt.WithTimeFunc(v.config.Now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if len(v.config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(v.config.Audience...))
	}
	return opts
}

// classify maps golang-jwt failures onto verification codes. Errors that do
// not describe the token itself are returned unchanged.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return verificationError(CodeIDTokenExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return verificationError(CodeArgumentError, "token is malformed", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// the keyfunc found no key for the token's kid/alg
		return verificationError(CodeInvalidIDToken, "no key verifies the token", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return verificationError(CodeInvalidIDToken, "token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return verificationError(CodeInvalidIDToken, "token claims are invalid", err)
	}
	return err
}

func newJWKSKeyfunc(ctx context.Context, cfg *config, jwksURI string) (keyfunc.Keyfunc, error) {
	if jwksURI == "" {
		return nil, errors.New("invalid config: jwks uri is required")
	}
	logger := cfg.Logger.With(slog.String("jwks_uri", jwksURI))
	timeout := cfg.HTTPClient.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	remote, err := jwkset.NewStorageFromHTTP(jwksURI, jwkset.HTTPClientStorageOptions{
		Client:          cfg.HTTPClient,
		Ctx:             ctx,
		HTTPTimeout:     timeout,
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "failed to refresh JWKS", slog.Any("err", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{jwksURI: remote},
		RateLimitWaitMax:  time.Minute,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(5*time.Minute), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
}

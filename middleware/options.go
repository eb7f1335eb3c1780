package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/theadell/tokengate"
)

type contextKey string

// AuthZTokenKey is the context key under which the default assigner stores the decoded identity.
var AuthZTokenKey = contextKey("authZToken")

// TokenExtractor extracts the raw credential from the request. An empty result means no credential.
type TokenExtractor func(r *http.Request) string

// MissingTokenHandler writes the response for a request that carried no credential.
type MissingTokenHandler func(w http.ResponseWriter)

// Verification resolves a raw credential into a decoded identity using the oracle.
type Verification func(ctx context.Context, rawToken string, oracle tokengate.Oracle) (any, error)

// TokenAssigner attaches the decoded identity to the request and returns the request to hand downstream.
type TokenAssigner func(r *http.Request, identity any) *http.Request

// ErrorHandler writes the response for a failed verification.
type ErrorHandler func(w http.ResponseWriter, err error, r *http.Request)

// Hooks holds the five replaceable steps of the pipeline. A nil field keeps the default.
type Hooks struct {
	ErrorHandler         ErrorHandler
	ExtractToken         TokenExtractor
	AssignTokenToRequest TokenAssigner
	MissingToken         MissingTokenHandler
	Verification         Verification
}

func defaultHooks() Hooks {
	return Hooks{
		ErrorHandler:         defaultErrorHandler,
		ExtractToken:         AuthorizationHeaderExtractor,
		AssignTokenToRequest: ContextTokenAssigner,
		MissingToken:         defaultMissingToken,
		Verification:         defaultVerification,
	}
}

type MiddlewareOption func(*middlewareOptions)

// middlewareOptions holds the hooks and logger resolved at build time.
type middlewareOptions struct {
	hooks  Hooks
	logger *slog.Logger
}

// WithHooks overrides every hook that is set in h.
func WithHooks(h Hooks) MiddlewareOption {
	return func(opts *middlewareOptions) {
		WithErrorHandler(h.ErrorHandler)(opts)
		WithTokenExtractor(h.ExtractToken)(opts)
		WithTokenAssigner(h.AssignTokenToRequest)(opts)
		WithMissingTokenHandler(h.MissingToken)(opts)
		WithVerification(h.Verification)(opts)
	}
}

// WithErrorHandler sets custom error response handling
func WithErrorHandler(handler ErrorHandler) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if handler != nil {
			opts.hooks.ErrorHandler = handler
		}
	}
}

// WithTokenExtractor sets a custom credential extractor
func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if extractor != nil {
			opts.hooks.ExtractToken = extractor
		}
	}
}

// WithTokenAssigner sets how the decoded identity is attached to the request
func WithTokenAssigner(assigner TokenAssigner) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if assigner != nil {
			opts.hooks.AssignTokenToRequest = assigner
		}
	}
}

// WithMissingTokenHandler sets the response for requests without a credential
func WithMissingTokenHandler(handler MissingTokenHandler) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if handler != nil {
			opts.hooks.MissingToken = handler
		}
	}
}

// WithVerification replaces the call to the oracle
func WithVerification(verification Verification) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if verification != nil {
			opts.hooks.Verification = verification
		}
	}
}

// WithLogger sets the logger for rejected requests. Output is discarded by default.
func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(opts *middlewareOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// AuthorizationHeaderExtractor returns the Authorization header verbatim, scheme included.
func AuthorizationHeaderExtractor(r *http.Request) string {
	return r.Header.Get("Authorization")
}

// BearerTokenExtractor extracts the token from the Authorization header (Bearer token).
func BearerTokenExtractor(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// CookieTokenExtractor extracts a token from the named cookie.
func CookieTokenExtractor(cookieName string) TokenExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// HeaderTokenExtractor extracts a token from a custom HTTP header.
func HeaderTokenExtractor(headerName string) TokenExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// defaultMissingToken answers 401 with the authentication-required body.
func defaultMissingToken(w http.ResponseWriter) {
	WriteErrors(w, http.StatusUnauthorized, TypeAuthenticationRequired)
}

func defaultVerification(ctx context.Context, rawToken string, oracle tokengate.Oracle) (any, error) {
	token, err := oracle.VerifyToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ContextTokenAssigner stores the identity in the request context under
// AuthZTokenKey. It is the default assigner.
func ContextTokenAssigner(r *http.Request, identity any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), AuthZTokenKey, identity))
}

// defaultErrorHandler answers 401 for refused credentials and 500 for anything else.
func defaultErrorHandler(w http.ResponseWriter, err error, r *http.Request) {
	if tokengate.IsInvalidCredential(err) {
		WriteErrors(w, http.StatusUnauthorized, TypeAuthenticationRequired)
		return
	}
	WriteErrors(w, http.StatusInternalServerError, TypeServerError)
}

// IdentityFromContext returns the identity stored by the default assigner.
func IdentityFromContext(ctx context.Context) (any, bool) {
	identity := ctx.Value(AuthZTokenKey)
	return identity, identity != nil
}

// TokenFromContext returns the identity stored by the default assigner when it is a *tokengate.Token.
func TokenFromContext(ctx context.Context) (*tokengate.Token, bool) {
	token, ok := ctx.Value(AuthZTokenKey).(*tokengate.Token)
	return token, ok
}

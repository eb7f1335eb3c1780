// Package middleware gates net/http handlers on a credential verified by a tokengate.Oracle.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/theadell/tokengate"
)

// Middleware runs the verification pipeline. It is immutable once built and
// safe for concurrent use.
type Middleware struct {
	oracle tokengate.Oracle
	hooks  Hooks
	logger *slog.Logger
}

// New resolves the hooks once and returns the pipeline bound to oracle.
func New(oracle tokengate.Oracle, opts ...MiddlewareOption) *Middleware {
	mOpts := &middlewareOptions{
		hooks:  defaultHooks(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(mOpts)
	}
	return &Middleware{
		oracle: oracle,
		hooks:  mOpts.hooks,
		logger: mOpts.logger,
	}
}

// VerifyToken is New(oracle, opts...).Handler.
func VerifyToken(oracle tokengate.Oracle, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	return New(oracle, opts...).Handler
}

// Handler wraps next so that it only runs for verified requests.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.ServeNext(w, r, next.ServeHTTP)
	})
}

// ServeNext runs the pipeline for one request. next is called exactly once,
// with the request carrying the identity, when verification succeeds; it is
// never called otherwise.
func (m *Middleware) ServeNext(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	rawToken := m.hooks.ExtractToken(r)
	if rawToken == "" {
		m.logger.DebugContext(r.Context(), "request has no credential",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		m.hooks.MissingToken(w)
		return
	}

	identity, err := m.verify(r.Context(), rawToken)
	if err != nil {
		m.logRejection(r, err)
		m.hooks.ErrorHandler(w, err, r)
		return
	}

	if assigned := m.hooks.AssignTokenToRequest(r, identity); assigned != nil {
		r = assigned
	}
	if next != nil {
		next(w, r)
	}
}

func (m *Middleware) verify(ctx context.Context, rawToken string) (identity any, err error) {
	defer func() {
		if p := recover(); p != nil {
			identity, err = nil, fmt.Errorf("tokengate: verification panicked: %v", p)
		}
	}()
	return m.hooks.Verification(ctx, rawToken, m.oracle)
}

func (m *Middleware) logRejection(r *http.Request, err error) {
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err),
	}
	if tokengate.IsInvalidCredential(err) {
		attrs = append(attrs, slog.String("code", string(tokengate.CodeOf(err))))
		m.logger.DebugContext(r.Context(), "credential refused", attrs...)
		return
	}
	m.logger.ErrorContext(r.Context(), "credential verification failed", attrs...)
}

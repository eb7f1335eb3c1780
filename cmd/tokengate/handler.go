package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/theadell/tokengate"
	"github.com/theadell/tokengate/internal/config"
	"github.com/theadell/tokengate/middleware"
)

const (
	headerRequestID = "X-Request-Id"
	headerSubject   = "X-Authenticated-Subject"
)

type requestIDKey struct{}

// newHandler returns the request id, access log and authentication chain in
// front of the upstream proxy or, without an upstream, the whoami handler.
func newHandler(cfg config.Config, oracle tokengate.Oracle, logger *slog.Logger) (http.Handler, error) {
	var backend http.Handler = http.HandlerFunc(whoami)
	if cfg.Upstream != "" {
		upstream, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, err
		}
		backend = newProxy(upstream, logger)
	}

	opts := []middleware.MiddlewareOption{
		middleware.WithLogger(logger),
		middleware.WithTokenAssigner(subjectAssigner),
	}
	if cfg.Bearer {
		opts = append(opts, middleware.WithTokenExtractor(middleware.BearerTokenExtractor))
	}

	chain := alice.New(
		requestID,
		accessLog(logger),
		middleware.VerifyToken(oracle, opts...),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", chain.Then(backend))
	return mux, nil
}

// subjectAssigner stores the identity in the context and forwards the subject
// in a header that replaces whatever the client sent.
func subjectAssigner(r *http.Request, identity any) *http.Request {
	r = middleware.ContextTokenAssigner(r, identity)
	r.Header = r.Header.Clone()
	r.Header.Del(headerSubject)
	if token, ok := identity.(*tokengate.Token); ok && token.Subject != "" {
		r.Header.Set(headerSubject, token.Subject)
	}
	return r
}

func newProxy(upstream *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.Any("err", err),
			)
			middleware.WriteErrors(w, http.StatusBadGateway, middleware.TypeServerError)
		},
	}
}

func whoami(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		middleware.WriteErrors(w, http.StatusInternalServerError, middleware.TypeServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sub":       token.Subject,
		"iss":       token.Issuer,
		"aud":       token.Audience,
		"scopes":    token.Scopes(),
		"expiresAt": token.ExpiresAt,
	})
}

// requestID reuses the caller's X-Request-Id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func accessLog(logger *slog.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.InfoContext(r.Context(), "request",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/theadell/tokengate"
	"github.com/theadell/tokengate/middleware"
)

func TestVerifyTokenMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := tokengate.NewFromDiscovery(ctx, kcIssuer)
	if err != nil {
		t.Fatalf("failed to create verifier %v", err.Error())
	}

	mw := middleware.VerifyToken(v, middleware.WithTokenExtractor(middleware.BearerTokenExtractor))
	svr := httptest.NewServer(mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})))
	defer svr.Close()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "no credential", status: http.StatusUnauthorized},
		{name: "garbage", token: "garbage", status: http.StatusUnauthorized},
		{name: "keycloak token", token: loginBob(t), status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, svr.URL, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := svr.Client().Do(req)
			if err != nil {
				t.Fatalf("Request to server failed with error %v", err.Error())
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d status code but got %q", tt.status, resp.Status)
			}
		})
	}
}

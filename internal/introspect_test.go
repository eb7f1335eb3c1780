package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIntrospectTokenRequest(t *testing.T) {
	const clientID = "testClient"
	const clientSecret = "testSecret"
	const token = "ya29.a0AfH6SMA9tWvGxj2Q-nLh-DLXHAXXKk5aNkksdsdfgXPdkz7XXm"
	const tokenType = "bearer"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != clientID || p != clientSecret {
			t.Errorf("basic auth not set correct, got %q:%q; want %q:%q", u, p, clientID, clientSecret)
		}
		if got, want := r.FormValue("token"), token; got != want {
			t.Errorf("token = %q; want %q", got, want)
		}
		if got, want := r.FormValue("token_type_hint"), tokenType; got != want {
			t.Errorf("token_type_hint = %q; want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"active": true, "token_type": "bearer", "sub": "alice", "tenant": "acme"}`)
	}))
	defer ts.Close()

	res, err := IntrospectToken(context.Background(), ts.Client(), ts.URL, IntrospectionRequest{
		Token:         token,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		TokenTypeHint: tokenType,
	})
	if err != nil {
		t.Fatalf("IntrospectToken = %v; want no error", err)
	}
	if !res.Active {
		t.Errorf("active = %t; want %t", res.Active, true)
	}
	if res.TokenType != "bearer" {
		t.Errorf("token_type = %q; want %q", res.TokenType, "bearer")
	}
	if res.Sub != "alice" {
		t.Errorf("sub = %q; want %q", res.Sub, "alice")
	}
	if got, want := res.Claims["tenant"], "acme"; got != want {
		t.Errorf("claims[tenant] = %v; want %q", got, want)
	}
}

func TestIntrospectTokenWithoutClientAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); ok {
			t.Error("basic auth sent without client id")
		}
		if got := r.FormValue("token_type_hint"); got != "" {
			t.Errorf("token_type_hint = %q; want empty", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"active": false}`)
	}))
	defer ts.Close()

	res, err := IntrospectToken(context.Background(), ts.Client(), ts.URL, IntrospectionRequest{Token: "opaque"})
	if err != nil {
		t.Fatalf("IntrospectToken = %v; want no error", err)
	}
	if res.Active {
		t.Error("active = true; want false")
	}
}

func TestIntrospectTokenError(t *testing.T) {
	const token = "ya29.a0AfH6SMA9tWvGxj2Q-nLh-DLXHAXXKk5aNkksdsdfgXPdkz7XXm"

	tests := []struct {
		name                string
		format              string
		status              int
		expectedErr         string
		expectedDescription string
	}{
		{
			name:                "JSON error response",
			format:              "json",
			status:              http.StatusBadRequest,
			expectedErr:         "invalid_request",
			expectedDescription: "The token is invalid.",
		},
		{
			name:                "Form-encoded error response",
			format:              "form",
			status:              http.StatusBadRequest,
			expectedErr:         "invalid_request",
			expectedDescription: "The token is invalid.",
		},
		{
			name:        "Unparseable error response",
			format:      "garbage",
			status:      http.StatusBadGateway,
			expectedErr: "introspection request failed",
		},
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("format") {
		case "json":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": "invalid_request", "error_description": "The token is invalid."}`)
		case "form":
			w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `error=invalid_request&error_description=The+token+is+invalid.`)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, `<html>bad gateway</html>`)
		}
	}))
	defer ts.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := IntrospectToken(context.Background(), ts.Client(), ts.URL+"?format="+tt.format, IntrospectionRequest{
				Token: token,
			})
			if res != nil {
				t.Errorf("expected nil response, got %+v", res)
			}

			var retrievalErr *RetrievalError
			if !errors.As(err, &retrievalErr) {
				t.Fatalf("expected RetrievalError, got %T", err)
			}
			if retrievalErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d; want %d", retrievalErr.StatusCode, tt.status)
			}
			if retrievalErr.Err != tt.expectedErr {
				t.Errorf("Err = %q; want %q", retrievalErr.Err, tt.expectedErr)
			}
			if retrievalErr.ErrorDescription != tt.expectedDescription {
				t.Errorf("ErrorDescription = %q; want %q", retrievalErr.ErrorDescription, tt.expectedDescription)
			}
		})
	}
}

func TestIntrospectTokenUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := IntrospectToken(context.Background(), http.DefaultClient, url, IntrospectionRequest{Token: "t"})
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) {
		t.Fatalf("expected RetrievalError, got %T", err)
	}
	if retrievalErr.Cause == nil {
		t.Error("Cause = nil; want transport error")
	}
}

func TestIntrospectTokenCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"active": true}`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := IntrospectToken(ctx, ts.Client(), ts.URL, IntrospectionRequest{Token: "t"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled in chain", err)
	}
}

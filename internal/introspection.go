package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

type IntrospectionRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Nbf       int64  `json:"nbf,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Jti       string `json:"jti,omitempty"`

	// Claims holds every member of the response, including extensions.
	Claims map[string]any `json:"-"`
}

// IntrospectToken performs an RFC 7662 introspection request. HTTP Basic
// client authentication is used when req.ClientID is set; otherwise the
// caller's client is expected to authenticate itself.
func IntrospectToken(ctx context.Context, client *http.Client, introspectionURL string, req IntrospectionRequest) (*IntrospectionResponse, error) {
	form := url.Values{}
	form.Set("token", req.Token)
	if req.TokenTypeHint != "" {
		form.Set("token_type_hint", req.TokenTypeHint)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RetrievalError{
			Err:              "failed to create introspection request",
			ErrorDescription: err.Error(),
			Cause:            err,
		}
	}

	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.ClientID != "" {
		httpReq.SetBasicAuth(url.QueryEscape(req.ClientID), url.QueryEscape(req.ClientSecret))
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &RetrievalError{
			Err:              "failed to send introspection request",
			ErrorDescription: err.Error(),
			Cause:            err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RetrievalError{
			Err:              "failed to read introspection response body",
			ErrorDescription: err.Error(),
			Cause:            err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		retrievalError := &RetrievalError{
			StatusCode: resp.StatusCode,
		}

		contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		switch contentType {
		case "application/x-www-form-urlencoded", "text/plain":
			vals, err := url.ParseQuery(string(body))
			if err == nil {
				retrievalError.Err = vals.Get("error")
				retrievalError.ErrorDescription = vals.Get("error_description")
			}
		default:
			var errResp struct {
				Error            string `json:"error"`
				ErrorDescription string `json:"error_description"`
			}
			if err = json.Unmarshal(body, &errResp); err == nil {
				retrievalError.Err = errResp.Error
				retrievalError.ErrorDescription = errResp.ErrorDescription
			}
		}

		if retrievalError.Err == "" {
			retrievalError.Err = "introspection request failed"
		}

		return nil, retrievalError
	}

	var introspectionResponse IntrospectionResponse
	if err := json.Unmarshal(body, &introspectionResponse); err != nil {
		return nil, &RetrievalError{
			Err:              "failed to decode introspection response",
			ErrorDescription: err.Error(),
			Cause:            err,
		}
	}
	if err := json.Unmarshal(body, &introspectionResponse.Claims); err != nil {
		return nil, &RetrievalError{
			Err:              "failed to decode introspection response",
			ErrorDescription: err.Error(),
			Cause:            err,
		}
	}

	return &introspectionResponse, nil
}

type RetrievalError struct {
	Err              string
	ErrorDescription string
	StatusCode       int
	Cause            error
}

func (e *RetrievalError) Error() string {
	var sb strings.Builder
	if e.Err != "" {
		sb.WriteString(e.Err)
	} else {
		sb.WriteString("retrieval error")
	}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" (HTTP status %d)", e.StatusCode))
	}
	if e.ErrorDescription != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.ErrorDescription))
	}
	return sb.String()
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

package tokengate

import (
	"encoding/json"
	"strings"
	"time"
)

// Token is the decoded identity produced by the built-in oracles.
// Registered claims are lifted into fields; everything else stays reachable
// through GetClaim and Claims.
type Token struct {
	Raw       string
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	claims map[string]any
}

// NewToken builds a Token from a verified claim set. The map is retained, not copied.
func NewToken(raw string, claims map[string]any) *Token {
	t := &Token{Raw: raw, claims: claims}
	t.Subject, _ = claims["sub"].(string)
	t.Issuer, _ = claims["iss"].(string)
	t.Audience = audienceOf(claims["aud"])
	t.ExpiresAt = unixTime(claims["exp"])
	t.IssuedAt = unixTime(claims["iat"])
	return t
}

// GetClaim returns a claim by its key
func (t *Token) GetClaim(key string) (any, bool) {
	v, ok := t.claims[key]
	return v, ok
}

// GetStringClaim returns the claim as a string, or "" if it is missing or not a string.
func (t *Token) GetStringClaim(key string) string {
	s, _ := t.claims[key].(string)
	return s
}

// GetInt64Claim returns the claim as an int64, or zero if it is missing or not numeric.
func (t *Token) GetInt64Claim(key string) int64 {
	switch v := t.claims[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Scopes splits the space-delimited "scope" claim.
func (t *Token) Scopes() []string {
	return strings.Fields(t.GetStringClaim("scope"))
}

// Claims unmarshals the full claim set into ref.
func (t *Token) Claims(ref any) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

func audienceOf(v any) []string {
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		aud := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				aud = append(aud, s)
			}
		}
		return aud
	}
	return nil
}

func unixTime(v any) time.Time {
	switch v := v.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}

package middleware

import (
	"encoding/json"
	"net/http"
)

const (
	TypeAuthenticationRequired = "Authentication required"
	TypeServerError            = "Server Error"
)

// ErrorResponse is the JSON body written by the default failure handlers.
type ErrorResponse struct {
	Errors []ErrorEntry `json:"errors"`
}

type ErrorEntry struct {
	Type string `json:"type"`
}

// WriteErrors writes status and an ErrorResponse with one entry per type.
func WriteErrors(w http.ResponseWriter, status int, types ...string) {
	body := ErrorResponse{Errors: make([]ErrorEntry, 0, len(types))}
	for _, t := range types {
		body.Errors = append(body.Errors, ErrorEntry{Type: t})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

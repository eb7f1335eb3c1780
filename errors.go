package tokengate

import (
	"errors"
	"strings"
)

var (
	ErrMissingCredential = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("credential is invalid or expired")
	ErrDiscoveryFailure  = errors.New("failed to discover OAuth2 server metadata")
	ErrNoKeyfunc         = errors.New("no key function configured")
)

// Code is the discriminant an oracle attaches to a refused credential.
type Code string

const (
	CodeArgumentError  Code = "auth/argument-error"
	CodeIDTokenExpired Code = "auth/id-token-expired"
	CodeInvalidIDToken Code = "auth/invalid-id-token"
	CodeIDTokenRevoked Code = "auth/id-token-revoked"
)

// Invalid reports whether c marks the credential itself as unacceptable,
// as opposed to a failure of the oracle.
func (c Code) Invalid() bool {
	switch c {
	case CodeArgumentError, CodeIDTokenExpired, CodeInvalidIDToken, CodeIDTokenRevoked:
		return true
	}
	return false
}

// VerificationError is returned by oracles when they refuse a credential.
// It matches ErrInvalidCredential under errors.Is when its Code is one of the
// recognised invalid-credential codes.
type VerificationError struct {
	Code        Code
	Description string
	Err         error
}

func (e *VerificationError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Description)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrInvalidCredential && e.Code.Invalid()
}

// IsInvalidCredential reports whether err signals a refused credential.
func IsInvalidCredential(err error) bool {
	return errors.Is(err, ErrInvalidCredential)
}

// CodeOf returns the code of the first VerificationError in err's chain, or
// the empty code if there is none.
func CodeOf(err error) Code {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func verificationError(code Code, description string, err error) *VerificationError {
	return &VerificationError{Code: code, Description: description, Err: err}
}

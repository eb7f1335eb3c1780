package tokengate

import "context"

// Oracle verifies a raw credential against an identity provider.
//
// VerifyToken returns an error matching ErrInvalidCredential when the
// credential is refused (malformed, expired, revoked, badly signed). Any
// other error is treated as a failure of the oracle itself.
type Oracle interface {
	VerifyToken(ctx context.Context, rawToken string) (*Token, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, rawToken string) (*Token, error)

func (f OracleFunc) VerifyToken(ctx context.Context, rawToken string) (*Token, error) {
	return f(ctx, rawToken)
}

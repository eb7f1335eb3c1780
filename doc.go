/*
Tokengate verifies bearer credentials against an external identity provider and
gates net/http handlers on the result.

The root package defines the [Oracle] contract and ships oracles for JWT ID
tokens (OIDC discovery, Firebase, static JWKS or caller-supplied keys) and for
RFC 7662 token introspection. Refused credentials are reported as
[*VerificationError] values carrying a [Code]; they match [ErrInvalidCredential]
under errors.Is. Every other error is an oracle failure.

The middleware sub-package turns an Oracle into the request pipeline: extract
the credential, verify it, attach the identity to the request, or answer with a
JSON error body. Each step is a hook that can be replaced independently.
*/
package tokengate

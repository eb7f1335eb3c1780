// Package ginmw adapts the tokengate middleware to Gin.
package ginmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/theadell/tokengate"
	"github.com/theadell/tokengate/middleware"
)

// IdentityKey is the Gin context key holding the identity of a verified request.
const IdentityKey = "authZToken"

// New runs m for each request. On success the request carrying the identity
// replaces c.Request, the identity is stored under IdentityKey and the chain
// continues. Otherwise the chain is aborted after m has written its response.
func New(m *middleware.Middleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		proceeded := false
		m.ServeNext(c.Writer, c.Request, func(w http.ResponseWriter, r *http.Request) {
			proceeded = true
			c.Request = r
			if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
				c.Set(IdentityKey, identity)
			}
			c.Next()
		})
		if !proceeded {
			c.Abort()
		}
	}
}

// Identity returns the identity stored by New.
func Identity(c *gin.Context) (any, bool) {
	return c.Get(IdentityKey)
}

// Token returns the identity stored by New when it is a *tokengate.Token.
func Token(c *gin.Context) (*tokengate.Token, bool) {
	identity, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	token, ok := identity.(*tokengate.Token)
	return token, ok
}

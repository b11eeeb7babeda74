package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/logging"
)

const ginKey = "identity"

// Require rejects requests without a valid bearer token and stores the
// caller's identity in both the gin and the request context.
func Require(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauth(c, "missing bearer token")
			return
		}

		id, err := v.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			logging.From(c).Info("auth_rejected", "err", err)
			unauth(c, apperr.Message(err))
			return
		}

		c.Set(ginKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		logging.With(c, logging.From(c).With("user_id", id.UserID, "role", id.Role))
		c.Next()
	}
}

// RequireRole allows only the listed roles through. It must run after Require.
func RequireRole(allowed ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := From(c)
		if !ok {
			unauth(c, "missing identity")
			return
		}
		for _, r := range allowed {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody(apperr.KindForbidden, "role not allowed"))
	}
}

// From returns the identity set by Require.
func From(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ginKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func unauth(c *gin.Context, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(apperr.KindUnauthenticated, desc))
}

func errorBody(kind apperr.Kind, msg string) gin.H {
	return gin.H{"success": false, "error": gin.H{"kind": kind, "message": msg}}
}

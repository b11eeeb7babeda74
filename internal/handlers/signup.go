package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/identity"
)

// ValidateSignup checks a role-tagged signup payload and echoes the
// resolved role. Passwords never leave the handler.
func ValidateSignup(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, apperr.InvalidArgument("handlers.ValidateSignup", "unreadable body"))
		return
	}
	s, err := identity.DecodeSignup(raw)
	if err != nil {
		fail(c, err)
		return
	}
	acct := s.Account()
	ok(c, http.StatusOK, gin.H{"role": s.Role(), "uid": acct.UID, "email": acct.Email})
}

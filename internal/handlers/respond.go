package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/logging"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidArgument: http.StatusBadRequest,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindInvalidState:    http.StatusConflict,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindStorage:         http.StatusServiceUnavailable,
}

// StatusFor maps an error kind to its HTTP status. Unclassified errors are 500.
func StatusFor(err error) int {
	if s, ok := statusByKind[apperr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// fail writes the error envelope. Storage and unclassified errors keep their
// cause out of the response and in the log.
func fail(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		logging.From(c).Error("request_failed", "kind", kind, "err", err)
		if kind == apperr.KindUnknown {
			kind = "Internal"
		}
		msg = http.StatusText(status)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody(kind, msg))
}

func errorBody(kind apperr.Kind, msg string) gin.H {
	return gin.H{"success": false, "error": gin.H{"kind": kind, "message": msg}}
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If either step fails, it writes a 400 InvalidArgument response and returns
// an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		abort(c, "invalid request body", map[string]string{"body": err.Error()})
		return err
	}

	if err := v.Struct(out); err != nil {
		abort(c, "validation failed", FieldErrors(err))
		return err
	}
	return nil
}

// FieldErrors flattens validator errors into field -> failed tag.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

func abort(c *gin.Context, msg string, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"kind":    apperr.KindInvalidArgument,
			"message": msg,
			"fields":  fields,
		},
	})
}

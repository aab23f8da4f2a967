package response

import (
	"net/http"

	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/Baaaki/component-review/pkg/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error writes a standardized error response: {"error": message, "kind": kind}.
// Internal errors are logged and replaced with a generic message.
func Error(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)
	message := err.Error()

	if code == http.StatusInternalServerError {
		logger.Log.Error("Internal error",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		message = apperror.ErrInternal.Error()
	}

	c.JSON(code, gin.H{
		"error": message,
		"kind":  apperror.KindName(err),
	})
}

// BindError reports a request body that failed binding or validation.
func BindError(c *gin.Context, err error) {
	Error(c, apperror.Validation(validator.FormatValidationError(err)))
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/memora-music/server/internal/shared/errors"
)

// Envelope is the common response shape: a success flag plus either
// payload fields or an error message.
type Envelope map[string]any

// development controls whether error details are included in responses.
// Set once at startup.
var development bool

// SetDevelopment enables error detail exposure in responses.
func SetDevelopment(enabled bool) {
	development = enabled
}

// OK writes a 200 response with success=true merged with the payload.
func OK(c *gin.Context, payload Envelope) {
	JSON(c, http.StatusOK, payload)
}

// JSON writes a response with success=true merged with the payload.
func JSON(c *gin.Context, status int, payload Envelope) {
	body := Envelope{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

// Error writes an error response with success=false and a user-facing
// message. The underlying error detail is only exposed in development.
func Error(c *gin.Context, status int, message string, err error) {
	body := Envelope{
		"success": false,
		"message": message,
	}
	if development && err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

// FromError writes an error response derived from an application error,
// falling back to a generic 500 for unclassified errors.
func FromError(c *gin.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		Error(c, appErr.HTTPStatus(), appErr.Message, appErr.Err)
		return
	}
	Error(c, http.StatusInternalServerError, "Erro interno do servidor", err)
}

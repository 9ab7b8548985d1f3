package res

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status.
func JSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Error maps a domain error to an HTTP status and writes the error reply.
func Error(c *gin.Context, err error, log *logger.Logger) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	} else {
		log.Warnw("Request rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrSignatureVerification):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package req

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/res"
)

var validate = validator.New()

// HandleBody decodes and validates the JSON request body. On failure it
// writes a 422 reply and returns an error, so callers just return.
func HandleBody[T any](c *gin.Context, log *logger.Logger) (*T, error) {
	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warnw("Failed to decode request body", "path", c.Request.URL.Path, "error", err)
		res.JSON(c, http.StatusUnprocessableEntity, res.ErrorResponse{Error: "invalid request body"})
		return nil, err
	}
	if err := validate.Struct(payload); err != nil {
		log.Warnw("Request body failed validation", "path", c.Request.URL.Path, "error", err)
		res.JSON(c, http.StatusUnprocessableEntity, res.ErrorResponse{Error: "invalid request data", Details: err.Error()})
		return nil, err
	}
	return &payload, nil
}

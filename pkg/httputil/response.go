package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/homecare-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status    string                 `json:"status"`
	Data      interface{}            `json:"data,omitempty"`
	ErrorKind errors.Kind            `json:"error_kind,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data})
}

// RespondWithError renders err. Application errors keep their kind, message
// and details; anything else is logged and reported as a generic internal error.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok || appErr.Kind == errors.KindInternal {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("request failed")
		appErr = errors.Internal(err)
	}

	c.AbortWithStatusJSON(appErr.StatusCode(), Response{
		Status:    "error",
		ErrorKind: appErr.Kind,
		Message:   appErr.Message,
		Details:   appErr.Details,
	})
}

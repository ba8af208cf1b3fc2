package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/decet2025-sketch/cert-api/internal/handler"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
)

// Recovery converts panics into envelope 500s instead of dropped
// connections.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("stack", string(debug.Stack())).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("client_ip", c.ClientIP()).
					Str("request_id", c.GetString(ContextRequestID)).
					Msg("Request panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, &handler.Envelope{
					OK:     false,
					Status: http.StatusInternalServerError,
					Error: &handler.ErrorBody{
						Code:    apperrors.CodeInternal,
						Message: "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}

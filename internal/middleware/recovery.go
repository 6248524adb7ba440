package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recovery handles panics and logs them appropriately
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("client_ip", c.ClientIP()).
					Str("request_id", c.GetString(ContextRequestID)).
					Msg("Request panic recovered")

				if wantsJSON(c) {
					c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
						Code:    http.StatusInternalServerError,
						Message: "Internal server error",
						TraceID: c.GetString(ContextRequestID),
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
				_, _ = c.Writer.WriteString("Internal server error")
			}
		}()
		c.Next()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}

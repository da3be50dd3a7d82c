package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger attaches a request scoped logger to the request context and logs
// each request once it completes. Bodies are never logged since they carry
// patient data.
func Logger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		l := base.With().Str("request_id", c.GetString(ContextRequestID)).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		statusCode := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case statusCode >= 500:
			ev = l.Error()
		case statusCode >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}

		if actor, ok := ActorFrom(c); ok {
			ev = ev.Str("actor_id", actor.ID.String()).Str("actor_role", string(actor.Role))
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg("Request processed")
	}
}

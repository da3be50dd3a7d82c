package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

const ContextActor = "actor"

type TokenValidator interface {
	Validate(raw string) (auth.Actor, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and puts the actor on the request
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("invalid authorization format")))
			return
		}

		actor, err := m.tokens.Validate(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		ctx := auth.WithActor(c.Request.Context(), actor)
		l := zerolog.Ctx(ctx).With().
			Str("actor_id", actor.ID.String()).
			Str("actor_role", string(actor.Role)).
			Logger()
		c.Request = c.Request.WithContext(l.WithContext(ctx))
		c.Set(ContextActor, actor)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no authenticated actor")))
			return
		}
		for _, role := range roles {
			if actor.Is(role) {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("role "+string(actor.Role)+" may not perform this action"))
	}
}

func ActorFrom(c *gin.Context) (auth.Actor, bool) {
	return auth.ActorFromContext(c.Request.Context())
}

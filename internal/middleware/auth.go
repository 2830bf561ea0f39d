package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"school_messenger/internal/service"
	"school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

// RequireAuth accepts the session credential either as a standard Bearer
// header or as X-Session-Id, which is what the mobile clients send.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(401, gin.H{"error": "Invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.GetHeader("X-Session-Id")
		}

		if token == "" {
			c.JSON(401, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		user, school, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(errors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("school", school)
		c.Next()
	}
}

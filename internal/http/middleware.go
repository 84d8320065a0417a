package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	UsernameKey             = "username"
	UserRoleKey             = "userRole"
)

// authMiddleware guards operator endpoints with a bearer token. It is a
// pass-through when no JWT secret is configured.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authService.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("missing authorization header"))
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("invalid authorization header format"))
			return
		}

		if !h.authorize(c, fields[1]) {
			return
		}
		c.Next()
	}
}

func (h *Handler) authorize(c *gin.Context, token string) bool {
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err.Error()))
		return false
	}

	username, okUsername := claims["username"].(string)
	role, okRole := claims["role"].(string)
	if !okUsername || !okRole {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("token is missing operator claims"))
		return false
	}

	c.Set(UsernameKey, username)
	c.Set(UserRoleKey, role)
	return true
}

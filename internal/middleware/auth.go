package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"channel-service/internal/auth"
	"channel-service/internal/repositories"
)

// Resolver verifies a bearer credential and returns the caller's identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware validates the Authorization header and provisions the
// application user on first authenticated contact. The resolved user id
// and role are attached to the request context; components downstream
// receive identity explicitly, never from ambient state.
func AuthMiddleware(resolver Resolver, users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := users.GetOrCreate(c.Request.Context(), identity.UserID, identity.Username, identity.Email)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("userRole", user.Role)
		c.Next()
	}
}

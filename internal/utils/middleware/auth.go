package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/module/auth"
	"github.com/memora-music/server/internal/shared/response"
	"github.com/memora-music/server/internal/utils/requestctx"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// OptionalAuth attaches user identity when a valid bearer token is
// present. Invalid or missing tokens leave the request anonymous.
func OptionalAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if claims, err := jwtManager.Validate(token); err == nil {
				c.Set(requestctx.KeyUserID, claims.UserID())
				c.Set(requestctx.KeyUserEmail, claims.Email)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "Autenticação necessária", nil)
			c.Abort()
			return
		}
		claims, err := jwtManager.Validate(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Token inválido ou expirado", nil)
			c.Abort()
			return
		}
		c.Set(requestctx.KeyUserID, claims.UserID())
		c.Set(requestctx.KeyUserEmail, claims.Email)
		c.Next()
	}
}

// Identity extracts the client-provided device and guest identifiers.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestctx.KeyDeviceID, strings.TrimSpace(c.GetHeader("x-device-id")))
		c.Set(requestctx.KeyGuestID, strings.TrimSpace(c.GetHeader("x-guest-id")))
		c.Next()
	}
}

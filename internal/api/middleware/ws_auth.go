package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"presence-service/internal/auth"
)

// TokenCookie is the cookie the browser client carries the credential in.
const TokenCookie = "auth_token"

// WSAuth is the admission gate for socket connections: the credential comes
// from the handshake cookie, with a token query parameter as fallback for
// non-browser clients. Rejection aborts before the upgrade, so no event
// handler is ever attached to an unauthenticated connection.
func WSAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(TokenCookie)
		if err != nil || tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		userID, err := tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

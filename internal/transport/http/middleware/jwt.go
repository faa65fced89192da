package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"swissknife-chat/internal/pkg/jwtutil"
	"swissknife-chat/internal/transport/http/response"
)

// Keys under which verified claims land in the request context.
const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// bearerToken pulls the credential out of an Authorization header.
func bearerToken(header string) (string, bool) {
	const scheme = "Bearer "
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}

// AuthJWT rejects requests without a valid bearer token and exposes the
// token's user id and username to downstream handlers.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// ContextActorKey is the gin context key storing the acting user id.
const ContextActorKey = "currentActor"

// Actor resolves the pre-authenticated actor identity for audit fields.
// The upstream gateway owns authentication; this service only decodes the
// token it forwarded, falling back to the trusted identity header.
func Actor(tokenSecret, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := fromBearer(c, tokenSecret); id != "" {
			c.Set(ContextActorKey, id)
			c.Next()
			return
		}
		if header != "" {
			if id := c.GetHeader(header); id != "" {
				c.Set(ContextActorKey, id)
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "actor identity missing"))
		c.Abort()
	}
}

func fromBearer(c *gin.Context, secret string) string {
	auth := c.GetHeader("Authorization")
	if auth == "" || secret == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// ActorID returns the resolved actor id, empty when unauthenticated.
func ActorID(c *gin.Context) string {
	if v, ok := c.Get(ContextActorKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/streamchat/pkg/api"
)

// Auth requires "Authorization: Bearer <key>" matching one of keys. With no
// keys configured every request passes.
func Auth(keys []string) gin.HandlerFunc {
	hashes := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, sha256.Sum256([]byte(k)))
		}
	}

	return func(c *gin.Context) {
		if len(hashes) == 0 {
			c.Next()
			return
		}

		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "Missing Authorization header")
			return
		}

		sum := sha256.Sum256([]byte(token))
		for _, h := range hashes {
			if subtle.ConstantTimeCompare(sum[:], h[:]) == 1 {
				c.Next()
				return
			}
		}
		abortUnauthorized(c, "Invalid API key")
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortUnauthorized(c *gin.Context, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(http.StatusUnauthorized, api.NewProblem(http.StatusUnauthorized, "Unauthorized", detail))
}

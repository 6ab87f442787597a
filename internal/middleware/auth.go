package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// SharedSecret admits requests whose header carries token. An empty token
// refuses every request.
func SharedSecret(header, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Match(c.GetHeader(header), token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// QueryOrHeaderSecret is SharedSecret for callers that can only put the
// secret in the URL.
func QueryOrHeaderSecret(param, header, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Query(param)
		if got == "" {
			got = c.GetHeader(header)
		}
		if !Match(got, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Match reports whether got is the configured secret. A secret stored as a
// bcrypt hash is compared against the hash.
func Match(got, secret string) bool {
	if secret == "" || got == "" {
		return false
	}
	if isBcrypt(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func isBcrypt(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards uploads and stored reports with a static bearer
// token. An empty token disables the check, which is only acceptable for
// local runs; release mode logs a warning at startup.
//
//	401  no Authorization header
//	403  header present but not "Bearer <token>" with the right token
func AuthMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		if os.Getenv("GIN_MODE") == gin.ReleaseMode {
			log.Println("[SECURITY WARNING] API_AUTH_TOKEN is empty in release mode: " +
				"ledger uploads and stored reports are open to anyone who can reach the port.")
		}
		return func(c *gin.Context) { c.Next() }
	}

	want := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <API_AUTH_TOKEN>",
			})
			return
		}

		got, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the credential from "Bearer <token>". The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, cred, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	cred = strings.TrimSpace(cred)
	return cred, cred != ""
}

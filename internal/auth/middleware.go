package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperatorCredentials identifies the single operator allowed on admin routes.
// An empty PasswordHash disables the admin routes.
type OperatorCredentials struct {
	User         string
	PasswordHash string
}

// OperatorRequired is a Gin middleware that checks HTTP basic credentials
// against the configured operator.
func OperatorRequired(creds OperatorCredentials, hasher PasswordHasher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if creds.PasswordHash == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="operator"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing credentials",
			})
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(creds.User)) == 1
		// Always run bcrypt so that timing does not reveal the user name.
		passErr := hasher.Compare(creds.PasswordHash, pass)
		if !userOK || passErr != nil {
			c.Header("WWW-Authenticate", `Basic realm="operator"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid credentials",
			})
			return
		}

		c.Set(operatorKey, user)
		c.Next()
	}
}

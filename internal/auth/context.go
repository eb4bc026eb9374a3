package auth

import "github.com/gin-gonic/gin"

const operatorKey = "operator"

// GetOperator returns the authenticated operator's user name or empty string.
func GetOperator(c *gin.Context) string {
	if v, ok := c.Get(operatorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

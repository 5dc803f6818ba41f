package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows the landing site to call the API from the browser. A "*"
// entry allows any origin without credentials. Only explicitly listed
// origins may send cookies.
func CORS(allowedOrigins ...string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
		case allowed[origin]:
			// The tracking cookie needs credentials, which rule out "*"
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
			setCORSMethods(c)
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
			setCORSMethods(c)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func setCORSMethods(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
}

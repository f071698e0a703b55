package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxLoadBodyBytes = 1 << 20

// LimitBody caps request bodies; the viewer API only accepts small JSON.
func LimitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxLoadBodyBytes)
		}
		c.Next()
	}
}

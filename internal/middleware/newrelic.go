package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NoticeErrors records errors attached by handlers on the request's New Relic
// transaction. It must run after nrgin.Middleware; without a transaction it is a no-op.
func NoticeErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if status := c.Writer.Status(); status > 0 {
			txn.AddAttribute("http.status", status)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}

package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/monitor"
)

// CountRequests records every served request on the Prometheus request
// counter. The route label is the matched pattern so parameterized paths do
// not explode the cardinality.
func CountRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitor.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/go-querystring/query"
)

// ConnectionContextKey holds the core.ConnectionStatus of requests that
// passed RequireConnection.
const ConnectionContextKey = "quickbooks.connection"

// RequireConnection lets requests through only when the owner has a usable
// connection. Browsers are redirected to the connect route; JSON clients get
// the error body.
func (controller *Controller) RequireConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := controller.owner(c)
		if !ok {
			return
		}

		status, err := controller.Service.ConnectionStatus(c.Request.Context(), owner)
		if err != nil {
			controller.Logger.Error("quickbooks connection check failed", "owner_id", owner, "error", err)
			controller.abortWithError(c, err)
			return
		}

		if !status.Connected {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"status":    http.StatusForbidden,
					"message":   "You must connect to QuickBooks before accessing this resource.",
					"reconnect": controller.ConnectPath(),
				})
				return
			}
			values, _ := query.Values(resultQuery{
				Status:  "error",
				Message: "You must connect to QuickBooks before accessing this resource.",
			})
			c.Redirect(http.StatusFound, controller.ConnectPath()+"?"+values.Encode())
			c.Abort()
			return
		}

		c.Set(ConnectionContextKey, status)
		c.Next()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

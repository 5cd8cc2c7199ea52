package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tiendamascotas/catalog_sync/utils"
)

// CorrelationMiddleware tags every request with an x-correlation-id so
// log lines from a single request can be stitched together.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

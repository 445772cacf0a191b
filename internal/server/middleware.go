package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	obslogger "github.com/smallbiznis/ordersync/internal/observability/logger"
)

const contextPosIDKey = "pos_id"

// AuthRequired checks the bearer token against the kitchen auth secret.
// Without a secret the ops surface is open, as on a single terminal.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.Kitchen.AuthSecret
		if secret == "" {
			c.Set(contextPosIDKey, s.cfg.PosID)
			c.Next()
			return
		}

		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := bridge.ParseToken(secret, strings.TrimSpace(token))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextPosIDKey, claims.PosID)
		c.Request = c.Request.WithContext(obslogger.ContextWithPosID(c.Request.Context(), claims.PosID))
		c.Next()
	}
}

func posIDFrom(c *gin.Context) string {
	if v, ok := c.Get(contextPosIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}

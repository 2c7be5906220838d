package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// CtxRealIPKey holds the client address resolved by RealIP.
const CtxRealIPKey = "real_ip"

// RealIP resolves the originating client address once per request and stores
// it in the Gin context. Proxy headers win over the socket peer:
// CF-Connecting-IP first, then the left-most X-Forwarded-For hop, then Gin's
// own resolution. Malformed header values are ignored.
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxRealIPKey, resolveClientIP(c))
		c.Next()
	}
}

// ClientIP returns the address stored by RealIP, falling back to Gin's
// resolution when the middleware did not run.
func ClientIP(c *gin.Context) string {
	if v, ok := c.Get(CtxRealIPKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.ClientIP()
}

func resolveClientIP(c *gin.Context) string {
	if cf := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); cf != "" {
		if ip := net.ParseIP(cf); ip != nil {
			return ip.String()
		}
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	return c.ClientIP()
}

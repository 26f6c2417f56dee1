package middleware

import (
	"crypto/subtle"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"

	"mallify-hub/internal/api/response"
)

const InternalTokenHeader = "X-Internal-Token"

// InternalTokenAuth guards operator endpoints such as metrics scraping and manual sweeps.
// Loopback peers pass without a token when allowLoopback is set; forwarding headers are ignored for that check.
func InternalTokenAuth(token string, allowLoopback bool) gin.HandlerFunc {
	expected := strings.TrimSpace(token)

	return func(c *gin.Context) {
		if allowLoopback && isLoopbackClient(c.RemoteIP()) {
			c.Next()
			return
		}

		provided := strings.TrimSpace(c.GetHeader(InternalTokenHeader))
		if provided == "" {
			provided = bearerToken(c.GetHeader("Authorization"))
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		c.Next()
	}
}

func bearerToken(header string) string {
	auth := strings.TrimSpace(header)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func isLoopbackClient(clientIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	if err != nil {
		return false
	}
	return addr.IsLoopback()
}

package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"ticketflow/internal/shared/utils/response"
	"ticketflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware rejects requests over budget with 429. A Redis failure lets the request through.
func Middleware(limiter *RateLimiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Processor callbacks are signature-checked and redelivered on 429.
		if strings.HasPrefix(c.FullPath(), "/webhooks/") {
			c.Next()
			return
		}

		clientIP := clientIP(c)
		limitType := limitTypeFor(c.Request.Method, c.FullPath())

		result, err := limiter.IsAllowed(c.Request.Context(), clientIP, limitType)
		if err != nil {
			log.Warn("rate limit check failed", "client_ip", clientIP, "type", string(limitType), "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

		if !result.Allowed {
			log.LogRateLimitExceeded(c.Request.Context(), clientIP, c.FullPath())
			response.RespondJSON(c, "error", http.StatusTooManyRequests,
				"Rate limit exceeded", nil, map[string]interface{}{
					"limit":      result.Limit,
					"reset_time": result.ResetTime,
				})
			c.Abort()
			return
		}

		c.Next()
	}
}

func limitTypeFor(method, path string) LimitType {
	switch {
	case strings.HasSuffix(path, "/reservations") && method == http.MethodPost:
		return LimitTypeHold
	case strings.HasSuffix(path, "/purchases"),
		strings.HasSuffix(path, "/refund"):
		return LimitTypePurchase
	case strings.Contains(path, "/check-ins"):
		return LimitTypeCheckIn
	case strings.HasPrefix(path, "/health"),
		strings.HasPrefix(path, "/metrics"),
		strings.Contains(path, "/events/"):
		return LimitTypePublic
	default:
		return LimitTypeDefault
	}
}

// clientIP prefers proxy headers when they carry a parseable address
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ip := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if realIP := c.GetHeader("X-Real-IP"); net.ParseIP(realIP) != nil {
		return realIP
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return ip
}

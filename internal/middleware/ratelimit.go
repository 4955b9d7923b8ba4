package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/repository"
)

// RateLimit 返回一个 Gin 中间件，按客户端 IP 做固定窗口限流。
func RateLimit(limiter repository.RateLimiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("RateLimiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 在反向代理之后需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := "ip:" + c.ClientIP()

		exceeded, err := limiter.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: limiter unavailable")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		if exceeded {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

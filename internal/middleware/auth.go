// Package middleware 提供 Gin 中间件: 认证与限流。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/service"
)

// Gin 上下文中保存认证结果的键
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
)

// ErrMissingToken 表示请求中既没有 Authorization 头也没有 token 查询参数
var ErrMissingToken = errors.New("missing bearer token")

// Authenticator 将 bearer token 解析为用户，由 service.AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth 返回一个 Gin 中间件，校验 bearer token 并把用户写入上下文。
func Auth(authenticator Authenticator) gin.HandlerFunc {
	if authenticator == nil {
		panic("Authenticator cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := ExtractToken(c)
		if err != nil {
			logrus.WithError(err).Debug("Auth middleware: no usable token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		user, err := authenticator.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, service.ErrUpstreamUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": service.PublicMessage(err)})
				return
			}
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		logrus.WithField("user_id", user.ID).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// ExtractToken 从 Authorization: Bearer 头或 token 查询参数中提取 token。
// 浏览器无法为 WebSocket 握手设置请求头，因此允许查询参数。
func ExtractToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("malformed Authorization header")
		}
		return parts[1], nil
	}
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

// CurrentUser 返回 Auth 中间件写入的用户
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}

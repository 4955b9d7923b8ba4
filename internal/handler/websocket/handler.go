// Package websocket 处理 WebSocket 握手: 先认证，再升级连接并交给 Hub。
package websocket

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/hub"
	"collaborative-board/internal/middleware"
	"collaborative-board/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和会话注册
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	hub           *hub.Hub
	authenticator middleware.Authenticator
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, authenticator middleware.Authenticator, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if authenticator == nil {
		panic("Authenticator cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || strings.EqualFold(origin, allowedOrigin)
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h, authenticator: authenticator}
}

// HandleConnection 处理 GET /ws。
// 认证失败时返回 401，不进行任何 WebSocket 交换。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithField("remote_addr", c.ClientIP())

	// 1. 认证，每个连接只执行一次
	token, err := middleware.ExtractToken(c)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
		return
	}
	user, err := h.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrUpstreamUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": service.PublicMessage(err)})
			return
		}
		logCtx.WithError(err).Warn("WS Handler: authentication failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	logCtx = logCtx.WithField("user_id", user.ID)

	// 2. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	// 3. 创建会话并启动读写 goroutine
	session, err := h.hub.NewSession(conn, *user)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: hub rejected session")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"))
		_ = conn.Close()
		return
	}
	session.Run()
	logCtx.WithField("session_id", session.ID()).Info("WS Handler: session started")
}

// Package http 提供协作引擎之外的 REST 接口: 注册登录与画板记录管理。
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/service"
)

// AuthHandler 封装了与用户认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

// RegisterRequest 定义注册请求的结构体
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// LoginRequest 定义登录请求的结构体
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 处理 POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	// 1. 绑定并验证输入 JSON
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Register: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	// 2. 调用 Service 层处理注册逻辑
	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Email)

	// 3. 处理 Service 返回的错误，状态码由 HandleServiceError 决定
	if err != nil {
		logrus.WithField("username", req.Username).WithError(err).Warn("Handler.Register: Registration failed")
		HandleServiceError(c, err)
		return
	}

	// 4. 注册成功响应，只返回公开的用户摘要
	logrus.WithField("user_id", user.ID).Info("Handler.Register: User registered")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user_id": user.ID,
		"user":    user.Summary(),
	})
}

// Login 处理 POST /api/auth/login，成功时返回 token 及其过期时间
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	// 1. 绑定并验证输入 JSON
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: username and password required")
		return
	}

	// 2. 调用 Service 层校验密码并签发 token
	creds, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)

	// 3. 处理 Service 返回的错误 (401 或 503)
	if err != nil {
		logrus.WithField("username", req.Username).WithError(err).Warn("Handler.Login: Login failed")
		HandleServiceError(c, err)
		return
	}

	// 4. 登录成功响应
	logrus.WithField("user_id", creds.User.ID).Info("Handler.Login: User logged in")
	SuccessResponse(c, http.StatusOK, creds)
}

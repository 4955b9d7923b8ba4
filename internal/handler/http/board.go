package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/middleware"
	"collaborative-board/internal/service"
)

// SessionKicker 强制断开用户的实时会话，由 hub.Hub 实现
type SessionKicker interface {
	Kick(boardID string, userID uint) int
}

// BoardHandler 封装了画板记录管理的 HTTP 处理逻辑
type BoardHandler struct {
	boardService *service.BoardService
	kicker       SessionKicker
}

// NewBoardHandler 创建 BoardHandler 实例
func NewBoardHandler(boardService *service.BoardService, kicker SessionKicker) *BoardHandler {
	if boardService == nil || kicker == nil {
		panic("BoardService and SessionKicker cannot be nil for BoardHandler")
	}
	return &BoardHandler{boardService: boardService, kicker: kicker}
}

// CreateBoardRequest 定义创建画板请求的结构体
type CreateBoardRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	IsPublic    bool   `json:"isPublic"`
}

// AddCollaboratorRequest 定义添加协作者请求的结构体
type AddCollaboratorRequest struct {
	UserID uint `json:"userId" binding:"required"`
}

// currentUserID 读取 Auth 中间件写入的用户 ID
func currentUserID(c *gin.Context) (uint, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		logrus.Warn("Handler: user not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	return user.ID, true
}

func userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid user ID format")
		return 0, false
	}
	return uint(id), true
}

// intQuery 读取可选的正整数查询参数，缺省时返回 def
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+key+" parameter")
		return 0, false
	}
	return v, true
}

// ListBoards 分页列出调用者拥有、协作或公开的画板
func (h *BoardHandler) ListBoards(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	result, err := h.boardService.ListBoards(c.Request.Context(), userID, page, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// CreateBoard 处理创建画板的请求
func (h *BoardHandler) CreateBoard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	board, err := h.boardService.CreateBoard(c.Request.Context(), userID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, board)
}

// GetBoard 返回调用者有权访问的画板
func (h *BoardHandler) GetBoard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	board, err := h.boardService.GetBoard(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, board)
}

// GetHistory 返回画板最近的绘图操作 (?limit=50)，最新的在前
func (h *BoardHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	history, err := h.boardService.History(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, history)
}

// AddCollaborator 由所有者添加协作者
func (h *BoardHandler) AddCollaborator(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	if err := h.boardService.AddCollaborator(c.Request.Context(), userID, c.Param("id"), req.UserID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Collaborator added"})
}

// RemoveCollaborator 由所有者移除协作者。已连接的会话保持连接，但之后的写入会被拒绝。
func (h *BoardHandler) RemoveCollaborator(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.boardService.RemoveCollaborator(c.Request.Context(), userID, c.Param("id"), target); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Collaborator removed"})
}

// KickUser 由所有者强制断开某用户在该画板上的实时会话
func (h *BoardHandler) KickUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	target, ok := userIDParam(c)
	if !ok {
		return
	}
	boardID := c.Param("id")
	if err := h.boardService.RequireModerator(c.Request.Context(), userID, boardID); err != nil {
		HandleServiceError(c, err)
		return
	}
	n := h.kicker.Kick(boardID, target)
	logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": target, "actor_id": userID, "sessions": n}).Info("Handler.KickUser: sessions closed")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "User disconnected", "sessions": n})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
	"collaborative-board/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	// maxHistoryLimit 限制一次历史查询返回的操作数量
	maxHistoryLimit = 500
)

// HistoryReader 读取画板最近的操作，由 HistoryService 实现
type HistoryReader interface {
	Recent(ctx context.Context, boardID string, limit int) ([]domain.Action, error)
}

// BoardService 提供画板记录的 CRUD 操作 (协作引擎之外的协作者接口)。
type BoardService struct {
	boardRepo repository.BoardRepository
	userRepo  repository.UserRepository
	guard     *AccessGuard
	history   HistoryReader
}

// NewBoardService 创建 BoardService 实例
func NewBoardService(boardRepo repository.BoardRepository, userRepo repository.UserRepository, guard *AccessGuard, history HistoryReader) *BoardService {
	if boardRepo == nil || userRepo == nil || guard == nil || history == nil {
		panic("BoardRepository, UserRepository, AccessGuard and HistoryReader must be non-nil for BoardService")
	}
	return &BoardService{boardRepo: boardRepo, userRepo: userRepo, guard: guard, history: history}
}

// CreateBoard 创建一个新画板，调用者成为所有者
func (s *BoardService) CreateBoard(ctx context.Context, ownerID uint, name, description string, isPublic bool) (*domain.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, fmt.Errorf("%w: board name must be 1..100 characters", ErrInvalidInput)
	}
	if len(description) > 500 {
		return nil, fmt.Errorf("%w: description must be at most 500 characters", ErrInvalidInput)
	}
	now := time.Now()
	board := &domain.Board{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		OwnerID:      ownerID,
		IsPublic:     isPublic,
		LastActivity: now,
	}
	if err := s.boardRepo.Save(ctx, board); err != nil {
		logrus.WithField("owner_id", ownerID).WithError(err).Error("Failed to save new board")
		return nil, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"board_id": board.ID, "owner_id": ownerID}).Info("Board created")
	return board, nil
}

// GetBoard 返回用户有权访问的画板
func (s *BoardService) GetBoard(ctx context.Context, userID uint, boardID string) (*domain.Board, error) {
	return s.guard.Authorize(ctx, userID, boardID)
}

// ListBoards 分页列出用户拥有、协作或公开的画板，page 从 1 开始
func (s *BoardService) ListBoards(ctx context.Context, userID uint, page, limit int) (*dto.BoardPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	boards, total, err := s.boardRepo.ListAccessible(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list boards")
		return nil, ErrUpstreamUnavailable
	}
	if boards == nil {
		boards = []domain.Board{}
	}
	return &dto.BoardPage{
		Boards: boards,
		Pagination: dto.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

// History 返回画板最近的 limit 条操作，最新的在前。调用者必须有访问权限。
func (s *BoardService) History(ctx context.Context, userID uint, boardID string, limit int) (*dto.BoardHistory, error) {
	if _, err := s.guard.Authorize(ctx, userID, boardID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultReplayLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	actions, err := s.history.Recent(ctx, boardID, limit)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	out := &dto.BoardHistory{BoardID: boardID, History: make([]dto.ActionView, 0, len(actions))}
	for _, a := range actions {
		out.History = append(out.History, dto.NewActionView(a))
	}
	return out, nil
}

// AddCollaborator 由所有者添加协作者
func (s *BoardService) AddCollaborator(ctx context.Context, actorID uint, boardID string, userID uint) error {
	if err := s.RequireModerator(ctx, actorID, boardID); err != nil {
		return err
	}
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return ErrUpstreamUnavailable
	}
	if err := s.boardRepo.AddCollaborator(ctx, boardID, userID); err != nil {
		logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID}).WithError(err).Error("Failed to add collaborator")
		return ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID, "actor_id": actorID}).Info("Collaborator added")
	return nil
}

// RemoveCollaborator 由所有者移除协作者。已连接的会话不会断开，但其后续写入会被拒绝。
func (s *BoardService) RemoveCollaborator(ctx context.Context, actorID uint, boardID string, userID uint) error {
	if err := s.RequireModerator(ctx, actorID, boardID); err != nil {
		return err
	}
	if err := s.boardRepo.RemoveCollaborator(ctx, boardID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID}).WithError(err).Error("Failed to remove collaborator")
		return ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID, "actor_id": actorID}).Info("Collaborator removed")
	return nil
}

// RequireModerator 检查 actor 是否为画板所有者
func (s *BoardService) RequireModerator(ctx context.Context, actorID uint, boardID string) error {
	ok, err := s.guard.CanModerate(ctx, actorID, boardID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

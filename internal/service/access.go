package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
)

// AccessGuard 判断用户能否读写画板。
// 每次调用都读取存储中的最新记录，协作者被移除后下一次写入即被拒绝。
type AccessGuard struct {
	boardRepo repository.BoardRepository
}

// NewAccessGuard 创建 AccessGuard 实例
func NewAccessGuard(boardRepo repository.BoardRepository) *AccessGuard {
	if boardRepo == nil {
		panic("BoardRepository cannot be nil for AccessGuard")
	}
	return &AccessGuard{boardRepo: boardRepo}
}

// Authorize 加载画板并检查访问权限，成功时返回画板。
func (g *AccessGuard) Authorize(ctx context.Context, userID uint, boardID string) (*domain.Board, error) {
	board, err := g.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.HasAccess(userID) {
		return nil, ErrAccessDenied
	}
	return board, nil
}

// CanAccess 当用户是所有者、协作者或画板公开时返回 true
func (g *AccessGuard) CanAccess(ctx context.Context, userID uint, boardID string) (bool, error) {
	board, err := g.load(ctx, boardID)
	if err != nil {
		return false, err
	}
	return board.HasAccess(userID), nil
}

// CanModerate 仅所有者返回 true
func (g *AccessGuard) CanModerate(ctx context.Context, userID uint, boardID string) (bool, error) {
	board, err := g.load(ctx, boardID)
	if err != nil {
		return false, err
	}
	return board.IsOwner(userID), nil
}

func (g *AccessGuard) load(ctx context.Context, boardID string) (*domain.Board, error) {
	if boardID == "" {
		return nil, ErrBoardNotFound
	}
	board, err := g.boardRepo.FindByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return nil, ErrBoardNotFound
		}
		logrus.WithField("board_id", boardID).WithError(err).Error("AccessGuard: failed to load board")
		return nil, ErrUpstreamUnavailable
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	return board, nil
}

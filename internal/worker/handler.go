// Package worker 运行 asynq 后台任务: 历史日志持久化与保留策略裁剪。
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
	"collaborative-board/internal/tasks"
)

// taskLogger 返回带有任务元数据的日志条目
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// HistoryPersistHandler 将一条已分配序列号的操作写入持久化历史日志
type HistoryPersistHandler struct {
	actionRepo repository.ActionRepository
	boardRepo  repository.BoardRepository // 可为 nil
}

// NewHistoryPersistHandler 创建 Handler 实例
func NewHistoryPersistHandler(actionRepo repository.ActionRepository, boardRepo repository.BoardRepository) *HistoryPersistHandler {
	if actionRepo == nil {
		panic("ActionRepository cannot be nil for HistoryPersistHandler")
	}
	return &HistoryPersistHandler{actionRepo: actionRepo, boardRepo: boardRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
// (board_id, seq) 唯一，重复执行不会产生重复记录。
func (h *HistoryPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.HistoryPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	action := payload.Action
	if action.BoardID == "" || action.Seq == 0 {
		logCtx.Error("Persist task carries an action without board or sequence")
		return fmt.Errorf("invalid action in payload: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"board_id": action.BoardID, "seq": action.Seq})

	if err := h.actionRepo.SaveBatch(ctx, []domain.Action{action}); err != nil {
		logCtx.WithError(err).Error("Failed to persist action")
		return fmt.Errorf("failed to save action %s/%d: %w", action.BoardID, action.Seq, err)
	}

	if h.boardRepo != nil {
		if err := h.boardRepo.Touch(ctx, action.BoardID, action.CreatedAt); err != nil {
			// 活跃时间只用于展示，不重试
			logCtx.WithError(err).Warn("Failed to update board last activity")
		}
	}
	logCtx.Debug("Action persisted")
	return nil
}

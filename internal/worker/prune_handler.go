package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/tasks"
)

// HistoryPruner 按保留数量裁剪最旧的操作，由 service.HistoryService 实现
type HistoryPruner interface {
	PruneBoard(ctx context.Context, boardID string, keep int) (int64, error)
	PruneAll(ctx context.Context, keep int) (int64, error)
}

// HistoryPruneHandler 处理周期性的保留策略任务
type HistoryPruneHandler struct {
	pruner      HistoryPruner
	defaultKeep int
}

// NewHistoryPruneHandler 创建 Handler 实例。defaultKeep 用于负载中未指定 keep 的任务。
func NewHistoryPruneHandler(pruner HistoryPruner, defaultKeep int) *HistoryPruneHandler {
	if pruner == nil {
		panic("HistoryPruner cannot be nil for HistoryPruneHandler")
	}
	return &HistoryPruneHandler{pruner: pruner, defaultKeep: defaultKeep}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *HistoryPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.HistoryPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	keep := payload.Keep
	if keep <= 0 {
		keep = h.defaultKeep
	}
	if keep <= 0 {
		logCtx.Warn("History retention disabled, skipping prune")
		return nil
	}
	logCtx = logCtx.WithFields(logrus.Fields{"board_id": payload.BoardID, "keep": keep})

	var (
		deleted int64
		err     error
	)
	if payload.BoardID != "" {
		deleted, err = h.pruner.PruneBoard(ctx, payload.BoardID, keep)
	} else {
		deleted, err = h.pruner.PruneAll(ctx, keep)
	}
	if err != nil {
		logCtx.WithError(err).WithField("deleted", deleted).Error("History prune finished with errors")
		return err
	}
	logCtx.WithField("deleted", deleted).Info("History prune task processed")
	return nil
}

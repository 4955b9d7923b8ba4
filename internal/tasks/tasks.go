// Package tasks 定义后台任务的类型、负载与入队方法。
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"collaborative-board/internal/domain"
)

// 定义任务类型常量
const (
	TypeHistoryPersist = "history:persist" // 将一条操作写入持久化历史日志
	TypeHistoryPrune   = "history:prune"   // 按保留策略裁剪最旧的操作
)

// 队列名称
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// HistoryPersistPayload 定义了持久化任务的数据结构
type HistoryPersistPayload struct {
	Action domain.Action `json:"action"`
}

// HistoryPrunePayload 定义了裁剪任务的数据结构。BoardID 为空表示检查所有画板。
type HistoryPrunePayload struct {
	BoardID string `json:"boardId,omitempty"`
	Keep    int    `json:"keep"`
}

// NewHistoryPersistTask 创建持久化任务。
// TaskID 由 (board, seq) 决定，同一操作重复入队会被 asynq 拒绝。
func NewHistoryPersistTask(action domain.Action) (*asynq.Task, error) {
	payload, err := json.Marshal(HistoryPersistPayload{Action: action})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history persist payload: %w", err)
	}
	return asynq.NewTask(TypeHistoryPersist, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.TaskID(fmt.Sprintf("persist:%s:%d", action.BoardID, action.Seq)),
		asynq.Retention(time.Hour),
	), nil
}

// NewHistoryPruneTask 创建裁剪任务
func NewHistoryPruneTask(boardID string, keep int) (*asynq.Task, error) {
	payload, err := json.Marshal(HistoryPrunePayload{BoardID: boardID, Keep: keep})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history prune payload: %w", err)
	}
	return asynq.NewTask(TypeHistoryPrune, payload, asynq.Queue(QueueLow), asynq.MaxRetry(3)), nil
}

// Enqueuer 通过 asynq 客户端投递后台任务
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer 创建 Enqueuer 实例
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	if client == nil {
		panic("asynq client cannot be nil for Enqueuer")
	}
	return &Enqueuer{client: client}
}

// EnqueuePersist 投递一条持久化任务。任务已存在时视为成功。
func (e *Enqueuer) EnqueuePersist(ctx context.Context, action domain.Action) error {
	task, err := NewHistoryPersistTask(action)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("asynq: enqueue %s for board %s seq %d: %w", TypeHistoryPersist, action.BoardID, action.Seq, err)
	}
	return nil
}

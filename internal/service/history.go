package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/metrics"
	"collaborative-board/internal/repository"
)

const (
	// DefaultReplayLimit 是加入画板时回放的最近操作数量
	DefaultReplayLimit = 50
	// DefaultPruneBatch 是每轮裁剪读取并归档的最大操作数
	DefaultPruneBatch = 1000
)

// PersistQueue 将一条已分配序列号的操作交给后台持久化。
type PersistQueue interface {
	EnqueuePersist(ctx context.Context, action domain.Action) error
}

// HistoryOptions 配置 HistoryService
type HistoryOptions struct {
	ReplayLimit int
	PruneBatch  int
}

// HistoryService 实现每个画板的历史日志:
// Redis 负责序列号和最近窗口，数据库负责持久化，asynq 负责异步写入。
type HistoryService struct {
	cache   repository.HistoryCache
	actions repository.ActionRepository
	queue   PersistQueue             // 可为 nil，此时同步写入
	archive repository.ActionArchive // 可为 nil，此时裁剪不归档
	metrics *metrics.Metrics
	opts    HistoryOptions
}

// NewHistoryService 创建 HistoryService 实例
func NewHistoryService(cache repository.HistoryCache, actions repository.ActionRepository, queue PersistQueue, archive repository.ActionArchive, m *metrics.Metrics, opts HistoryOptions) *HistoryService {
	if cache == nil || actions == nil {
		panic("HistoryCache and ActionRepository cannot be nil for HistoryService")
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = DefaultReplayLimit
	}
	if opts.PruneBatch <= 0 {
		opts.PruneBatch = DefaultPruneBatch
	}
	return &HistoryService{cache: cache, actions: actions, queue: queue, archive: archive, metrics: m, opts: opts}
}

// ReplayLimit 返回加入时的回放窗口大小
func (s *HistoryService) ReplayLimit() int {
	return s.opts.ReplayLimit
}

// Append 为操作分配序列号并写入最近窗口，然后安排持久化。
// 同一画板的并发 Append 由 Redis 脚本串行化，不会得到相同的序列号。
func (s *HistoryService) Append(ctx context.Context, action *domain.Action) (uint64, error) {
	logCtx := logrus.WithFields(logrus.Fields{"board_id": action.BoardID, "user_id": action.UserID, "kind": action.Kind})

	if err := s.ensureSequence(ctx, action.BoardID); err != nil {
		logCtx.WithError(err).Error("HistoryService: failed to seed sequence counter")
		return 0, ErrUpstreamUnavailable
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	seq, err := s.cache.Append(ctx, action)
	if err != nil {
		logCtx.WithError(err).Error("HistoryService: failed to append action")
		return 0, ErrUpstreamUnavailable
	}
	action.Seq = seq
	logCtx = logCtx.WithField("seq", seq)

	// 持久化失败不影响已经分配的序列号，窗口中的记录仍然可以回放
	if s.queue != nil {
		err := s.queue.EnqueuePersist(ctx, *action)
		if err == nil {
			return seq, nil
		}
		logCtx.WithError(err).Warn("HistoryService: enqueue persist failed, writing synchronously")
	}
	if err := s.actions.SaveBatch(ctx, []domain.Action{*action}); err != nil {
		s.metrics.PersistFailed()
		logCtx.WithError(err).Error("HistoryService: failed to persist action")
	}
	return seq, nil
}

// ensureSequence 在 Redis 计数器丢失时用数据库中的最大序列号初始化它
func (s *HistoryService) ensureSequence(ctx context.Context, boardID string) error {
	ok, err := s.cache.HasSequence(ctx, boardID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	maxSeq, err := s.actions.MaxSeq(ctx, boardID)
	if err != nil {
		return err
	}
	return s.cache.SeedSequence(ctx, boardID, maxSeq)
}

// Recent 返回最近的 limit 条操作，按 seq 降序。
// 窗口不足时从数据库补齐更早的部分。
func (s *HistoryService) Recent(ctx context.Context, boardID string, limit int) ([]domain.Action, error) {
	if limit <= 0 {
		limit = s.opts.ReplayLimit
	}
	logCtx := logrus.WithFields(logrus.Fields{"board_id": boardID, "limit": limit})

	cached, err := s.cache.Recent(ctx, boardID, limit)
	if err != nil {
		logCtx.WithError(err).Warn("HistoryService: cache read failed, falling back to database")
		cached = nil
	}
	if len(cached) >= limit {
		return cached[:limit], nil
	}

	var before uint64
	if n := len(cached); n > 0 {
		before = cached[n-1].Seq
		if before <= 1 {
			return cached, nil
		}
	}
	older, err := s.actions.Recent(ctx, boardID, before, limit-len(cached))
	if err != nil {
		if len(cached) > 0 {
			logCtx.WithError(err).Warn("HistoryService: database read failed, returning cached window only")
			return cached, nil
		}
		logCtx.WithError(err).Error("HistoryService: failed to load history")
		return nil, ErrUpstreamUnavailable
	}
	return append(cached, older...), nil
}

// PruneBoard 删除超出保留数量的最旧操作，配置了归档时先归档。
// 返回删除的数量。
func (s *HistoryService) PruneBoard(ctx context.Context, boardID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("%w: keep must be positive", ErrInvalidInput)
	}
	logCtx := logrus.WithFields(logrus.Fields{"board_id": boardID, "keep": keep})

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := s.actions.OldestBeyond(ctx, boardID, keep, s.opts.PruneBatch)
		if err != nil {
			return total, fmt.Errorf("load prune batch for board %s: %w", boardID, err)
		}
		if len(batch) == 0 {
			break
		}
		if s.archive != nil {
			location, err := s.archive.Archive(ctx, boardID, batch)
			if err != nil {
				return total, fmt.Errorf("archive board %s: %w", boardID, err)
			}
			logCtx.WithFields(logrus.Fields{"location": location, "count": len(batch)}).Info("Archived pruned actions")
		}
		deleted, err := s.actions.DeleteThrough(ctx, boardID, batch[len(batch)-1].Seq)
		if err != nil {
			return total, fmt.Errorf("delete pruned actions for board %s: %w", boardID, err)
		}
		total += deleted
		s.metrics.Pruned(deleted)
		if len(batch) < s.opts.PruneBatch {
			break
		}
	}
	if total > 0 {
		logCtx.WithField("deleted", total).Info("History pruned")
	}
	return total, nil
}

// PruneAll 对所有超出保留数量的画板执行裁剪，单个画板失败不影响其他画板。
func (s *HistoryService) PruneAll(ctx context.Context, keep int) (int64, error) {
	boards, err := s.actions.BoardsExceeding(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("list boards exceeding retention: %w", err)
	}
	var (
		total int64
		errs  []error
	)
	for _, boardID := range boards {
		n, err := s.PruneBoard(ctx, boardID, keep)
		total += n
		if err != nil {
			logrus.WithField("board_id", boardID).WithError(err).Error("HistoryService: prune failed")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

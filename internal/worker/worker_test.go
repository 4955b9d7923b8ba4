package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository/mocks"
	"collaborative-board/internal/tasks"
	"collaborative-board/internal/worker"
)

func TestHistoryPersistHandler_SavesAndTouchesBoard(t *testing.T) {
	ctx := context.Background()
	actionRepo := mocks.NewActionRepository(t)
	boardRepo := mocks.NewBoardRepository(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	action := domain.Action{BoardID: "b1", Seq: 7, Kind: domain.ActionDraw, Data: `{"points":[0,0,1,1]}`, UserID: 1, CreatedAt: created}
	task, err := tasks.NewHistoryPersistTask(action)
	require.NoError(t, err)

	actionRepo.On("SaveBatch", ctx, mock.MatchedBy(func(batch []domain.Action) bool {
		return len(batch) == 1 && batch[0].BoardID == "b1" && batch[0].Seq == 7 && batch[0].Data == action.Data
	})).Return(nil).Once()
	boardRepo.On("Touch", ctx, "b1", mock.MatchedBy(func(at time.Time) bool { return at.Equal(created) })).Return(nil).Once()

	h := worker.NewHistoryPersistHandler(actionRepo, boardRepo)
	require.NoError(t, h.ProcessTask(ctx, task))
}

func TestHistoryPersistHandler_SaveFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	actionRepo := mocks.NewActionRepository(t)

	task, err := tasks.NewHistoryPersistTask(domain.Action{BoardID: "b1", Seq: 1, Kind: domain.ActionErase})
	require.NoError(t, err)
	actionRepo.On("SaveBatch", ctx, mock.Anything).Return(errors.New("db down")).Once()

	err = worker.NewHistoryPersistHandler(actionRepo, nil).ProcessTask(ctx, task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHistoryPersistHandler_BadPayloadSkipsRetry(t *testing.T) {
	actionRepo := mocks.NewActionRepository(t)
	h := worker.NewHistoryPersistHandler(actionRepo, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeHistoryPersist, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeHistoryPersist, []byte(`{"action":{"boardId":"b1"}}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry, "an action without sequence cannot be persisted")
}

type fakePruner struct {
	boardCalls []string
	allCalls   int
	keep       int
	err        error
}

func (p *fakePruner) PruneBoard(_ context.Context, boardID string, keep int) (int64, error) {
	p.boardCalls = append(p.boardCalls, boardID)
	p.keep = keep
	return 3, p.err
}

func (p *fakePruner) PruneAll(_ context.Context, keep int) (int64, error) {
	p.allCalls++
	p.keep = keep
	return 10, p.err
}

func TestHistoryPruneHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("single board with explicit keep", func(t *testing.T) {
		p := &fakePruner{}
		task, err := tasks.NewHistoryPruneTask("b1", 100)
		require.NoError(t, err)

		require.NoError(t, worker.NewHistoryPruneHandler(p, 5000).ProcessTask(ctx, task))
		assert.Equal(t, []string{"b1"}, p.boardCalls)
		assert.Equal(t, 100, p.keep)
	})

	t.Run("all boards with default keep", func(t *testing.T) {
		p := &fakePruner{}
		require.NoError(t, worker.NewHistoryPruneHandler(p, 5000).ProcessTask(ctx, asynq.NewTask(tasks.TypeHistoryPrune, nil)))
		assert.Equal(t, 1, p.allCalls)
		assert.Equal(t, 5000, p.keep)
	})

	t.Run("retention disabled", func(t *testing.T) {
		p := &fakePruner{}
		require.NoError(t, worker.NewHistoryPruneHandler(p, 0).ProcessTask(ctx, asynq.NewTask(tasks.TypeHistoryPrune, nil)))
		assert.Zero(t, p.allCalls)
	})

	t.Run("errors are returned for retry", func(t *testing.T) {
		p := &fakePruner{err: errors.New("archive unavailable")}
		err := worker.NewHistoryPruneHandler(p, 10).ProcessTask(ctx, asynq.NewTask(tasks.TypeHistoryPrune, nil))
		assert.Error(t, err)
	})
}

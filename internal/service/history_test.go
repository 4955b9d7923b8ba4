package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository/mocks"
	"collaborative-board/internal/service"
)

type fakeQueue struct {
	err      error
	enqueued []domain.Action
}

func (q *fakeQueue) EnqueuePersist(_ context.Context, action domain.Action) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, action)
	return nil
}

func actionsDesc(boardID string, from, to uint64) []domain.Action {
	var out []domain.Action
	for seq := from; seq >= to && seq > 0; seq-- {
		out = append(out, domain.Action{BoardID: boardID, Seq: seq, Kind: domain.ActionDraw, Data: `{"points":[0,0,1,1]}`})
	}
	return out
}

func TestHistoryService_Append_Enqueues(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)
	queue := &fakeQueue{}

	cache.On("HasSequence", ctx, "b1").Return(true, nil).Once()
	cache.On("Append", ctx, mock.MatchedBy(func(a *domain.Action) bool {
		return a.BoardID == "b1" && !a.CreatedAt.IsZero()
	})).Return(uint64(42), nil).Once()

	svc := service.NewHistoryService(cache, actions, queue, nil, nil, service.HistoryOptions{})
	action := &domain.Action{BoardID: "b1", Kind: domain.ActionDraw, Data: `{"points":[0,0,10,10]}`, UserID: 1}

	seq, err := svc.Append(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, uint64(42), action.Seq)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, uint64(42), queue.enqueued[0].Seq)
	actions.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestHistoryService_Append_SeedsMissingCounter(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)

	cache.On("HasSequence", ctx, "b1").Return(false, nil).Once()
	actions.On("MaxSeq", ctx, "b1").Return(uint64(17), nil).Once()
	cache.On("SeedSequence", ctx, "b1", uint64(17)).Return(nil).Once()
	cache.On("Append", ctx, mock.Anything).Return(uint64(18), nil).Once()
	actions.On("SaveBatch", ctx, mock.MatchedBy(func(batch []domain.Action) bool {
		return len(batch) == 1 && batch[0].Seq == 18
	})).Return(nil).Once()

	svc := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{})
	seq, err := svc.Append(ctx, &domain.Action{BoardID: "b1", Kind: domain.ActionErase})
	require.NoError(t, err)
	assert.Equal(t, uint64(18), seq)
}

func TestHistoryService_Append_EnqueueFailureFallsBackToSyncWrite(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)

	cache.On("HasSequence", ctx, "b1").Return(true, nil).Once()
	cache.On("Append", ctx, mock.Anything).Return(uint64(3), nil).Once()
	actions.On("SaveBatch", ctx, mock.Anything).Return(nil).Once()

	svc := service.NewHistoryService(cache, actions, &fakeQueue{err: errors.New("redis down")}, nil, nil, service.HistoryOptions{})
	seq, err := svc.Append(ctx, &domain.Action{BoardID: "b1", Kind: domain.ActionDraw})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestHistoryService_Append_CacheUnavailable(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)

	cache.On("HasSequence", ctx, "b1").Return(false, errors.New("dial tcp: refused")).Once()

	svc := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{})
	_, err := svc.Append(ctx, &domain.Action{BoardID: "b1", Kind: domain.ActionDraw})
	assert.ErrorIs(t, err, service.ErrUpstreamUnavailable)
}

func TestHistoryService_Recent(t *testing.T) {
	ctx := context.Background()

	t.Run("window satisfies limit", func(t *testing.T) {
		cache := mocks.NewHistoryCache(t)
		actions := mocks.NewActionRepository(t)
		cache.On("Recent", ctx, "b1", 50).Return(actionsDesc("b1", 120, 71), nil).Once()

		got, err := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{}).Recent(ctx, "b1", 0)
		require.NoError(t, err)
		require.Len(t, got, 50)
		assert.Equal(t, uint64(120), got[0].Seq)
		assert.Equal(t, uint64(71), got[49].Seq)
	})

	t.Run("window short, older entries from database", func(t *testing.T) {
		cache := mocks.NewHistoryCache(t)
		actions := mocks.NewActionRepository(t)
		cache.On("Recent", ctx, "b1", 10).Return(actionsDesc("b1", 30, 27), nil).Once()
		actions.On("Recent", ctx, "b1", uint64(27), 6).Return(actionsDesc("b1", 26, 21), nil).Once()

		got, err := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{}).Recent(ctx, "b1", 10)
		require.NoError(t, err)
		require.Len(t, got, 10)
		for i := 1; i < len(got); i++ {
			assert.Equal(t, got[i-1].Seq-1, got[i].Seq, "replay must be strictly most-recent-first")
		}
	})

	t.Run("window holds the whole log", func(t *testing.T) {
		cache := mocks.NewHistoryCache(t)
		actions := mocks.NewActionRepository(t)
		cache.On("Recent", ctx, "b1", 50).Return(actionsDesc("b1", 3, 1), nil).Once()

		got, err := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{}).Recent(ctx, "b1", 50)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		actions.AssertNotCalled(t, "Recent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache down, database up", func(t *testing.T) {
		cache := mocks.NewHistoryCache(t)
		actions := mocks.NewActionRepository(t)
		cache.On("Recent", ctx, "b1", 5).Return(nil, errors.New("timeout")).Once()
		actions.On("Recent", ctx, "b1", uint64(0), 5).Return(actionsDesc("b1", 9, 5), nil).Once()

		got, err := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{}).Recent(ctx, "b1", 5)
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("both down", func(t *testing.T) {
		cache := mocks.NewHistoryCache(t)
		actions := mocks.NewActionRepository(t)
		cache.On("Recent", ctx, "b1", 5).Return(nil, errors.New("timeout")).Once()
		actions.On("Recent", ctx, "b1", uint64(0), 5).Return(nil, errors.New("timeout")).Once()

		_, err := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{}).Recent(ctx, "b1", 5)
		assert.ErrorIs(t, err, service.ErrUpstreamUnavailable)
	})
}

func TestHistoryService_PruneBoard_ArchivesThenDeletesOldest(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)
	archive := mocks.NewActionArchive(t)

	first := []domain.Action{{BoardID: "b1", Seq: 1}, {BoardID: "b1", Seq: 2}}
	second := []domain.Action{{BoardID: "b1", Seq: 3}}

	actions.On("OldestBeyond", ctx, "b1", 5, 2).Return(first, nil).Once()
	archive.On("Archive", ctx, "b1", first).Return("s3://bucket/b1/1-2.jsonl", nil).Once()
	actions.On("DeleteThrough", ctx, "b1", uint64(2)).Return(int64(2), nil).Once()
	actions.On("OldestBeyond", ctx, "b1", 5, 2).Return(second, nil).Once()
	archive.On("Archive", ctx, "b1", second).Return("s3://bucket/b1/3-3.jsonl", nil).Once()
	actions.On("DeleteThrough", ctx, "b1", uint64(3)).Return(int64(1), nil).Once()

	svc := service.NewHistoryService(cache, actions, nil, archive, nil, service.HistoryOptions{PruneBatch: 2})
	n, err := svc.PruneBoard(ctx, "b1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestHistoryService_PruneBoard_ArchiveFailureKeepsRows(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)
	archive := mocks.NewActionArchive(t)

	batch := []domain.Action{{BoardID: "b1", Seq: 1}}
	actions.On("OldestBeyond", ctx, "b1", 5, service.DefaultPruneBatch).Return(batch, nil).Once()
	archive.On("Archive", ctx, "b1", batch).Return("", errors.New("access denied")).Once()

	svc := service.NewHistoryService(cache, actions, nil, archive, nil, service.HistoryOptions{})
	_, err := svc.PruneBoard(ctx, "b1", 5)
	require.Error(t, err)
	actions.AssertNotCalled(t, "DeleteThrough", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryService_PruneAll_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewHistoryCache(t)
	actions := mocks.NewActionRepository(t)

	actions.On("BoardsExceeding", ctx, 5).Return([]string{"bad", "good"}, nil).Once()
	actions.On("OldestBeyond", ctx, "bad", 5, service.DefaultPruneBatch).Return(nil, errors.New("deadlock")).Once()
	actions.On("OldestBeyond", ctx, "good", 5, service.DefaultPruneBatch).Return([]domain.Action{{BoardID: "good", Seq: 4}}, nil).Once()
	actions.On("DeleteThrough", ctx, "good", uint64(4)).Return(int64(1), nil).Once()

	svc := service.NewHistoryService(cache, actions, nil, nil, nil, service.HistoryOptions{})
	n, err := svc.PruneAll(ctx, 5)
	assert.Error(t, err)
	assert.Equal(t, int64(1), n)
}

package gormpersistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collaborative-board/internal/domain"
	gormpersistence "collaborative-board/internal/infra/persistence/gorm"
	"collaborative-board/internal/repository"
)

// newTestDB 为每个测试创建独立的内存 sqlite 数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Board{}, &domain.BoardCollaborator{}, &domain.Action{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGormUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := gormpersistence.NewGormUserRepository(newTestDB(t))

	u := &domain.User{Username: "alice", Password: "hash", Email: "alice@example.com"}
	require.NoError(t, repo.Save(ctx, u))
	assert.NotZero(t, u.ID)

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	found, err = repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	dup := &domain.User{Username: "alice", Password: "x", Email: "other@example.com"}
	assert.ErrorIs(t, repo.Save(ctx, dup), repository.ErrDuplicateEntry)
}

func TestGormBoardRepository_Collaborators(t *testing.T) {
	ctx := context.Background()
	repo := gormpersistence.NewGormBoardRepository(newTestDB(t))

	require.NoError(t, repo.Save(ctx, &domain.Board{ID: "b1", Name: "Board", OwnerID: 1}))
	require.NoError(t, repo.AddCollaborator(ctx, "b1", 2))
	require.NoError(t, repo.AddCollaborator(ctx, "b1", 2), "重复添加协作者不应报错")

	b, err := repo.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, b.HasAccess(2))
	assert.Len(t, b.Collaborators, 1)

	require.NoError(t, repo.RemoveCollaborator(ctx, "b1", 2))
	assert.ErrorIs(t, repo.RemoveCollaborator(ctx, "b1", 2), repository.ErrNotFound)

	b, err = repo.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, b.HasAccess(2))

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrBoardNotFound)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, repo.Touch(ctx, "b1", at))
	b, err = repo.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.WithinDuration(t, at, b.LastActivity, time.Second)
}

func TestGormBoardRepository_ListAccessible(t *testing.T) {
	ctx := context.Background()
	repo := gormpersistence.NewGormBoardRepository(newTestDB(t))
	now := time.Now().Truncate(time.Second)

	boards := []domain.Board{
		{ID: "owned", Name: "Owned", OwnerID: 1, LastActivity: now.Add(-3 * time.Hour)},
		{ID: "shared", Name: "Shared", OwnerID: 2, LastActivity: now.Add(-time.Hour)},
		{ID: "public", Name: "Public", OwnerID: 2, IsPublic: true, LastActivity: now.Add(-2 * time.Hour)},
		{ID: "hidden", Name: "Hidden", OwnerID: 2, LastActivity: now},
	}
	for i := range boards {
		require.NoError(t, repo.Save(ctx, &boards[i]))
	}
	require.NoError(t, repo.AddCollaborator(ctx, "shared", 1))

	got, total, err := repo.ListAccessible(ctx, 1, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	ids := make([]string, 0, len(got))
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"shared", "public", "owned"}, ids, "最近活跃的画板在前")

	page, total, err := repo.ListAccessible(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "owned", page[0].ID)

	none, total, err := repo.ListAccessible(ctx, 99, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, none, 1)
	assert.Equal(t, "public", none[0].ID)
}

func makeActions(boardID string, from, to uint64) []domain.Action {
	var out []domain.Action
	for seq := from; seq <= to; seq++ {
		out = append(out, domain.Action{
			BoardID:   boardID,
			Seq:       seq,
			Kind:      domain.ActionDraw,
			Data:      `{"points":[0,0,1,1]}`,
			UserID:    1,
			Username:  "alice",
			CreatedAt: time.Now(),
		})
	}
	return out
}

func TestGormActionRepository_SaveBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := gormpersistence.NewGormActionRepository(newTestDB(t))

	require.NoError(t, repo.SaveBatch(ctx, makeActions("b1", 1, 5)))
	require.NoError(t, repo.SaveBatch(ctx, makeActions("b1", 3, 7)), "重复的 (board_id, seq) 应被忽略")

	max, err := repo.MaxSeq(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), max)

	recent, err := repo.Recent(ctx, "b1", 0, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []uint64{7, 6, 5}, []uint64{recent[0].Seq, recent[1].Seq, recent[2].Seq})

	older, err := repo.Recent(ctx, "b1", 3, 10)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, uint64(2), older[0].Seq)

	empty, err := repo.MaxSeq(ctx, "nothing")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestGormActionRepository_Retention(t *testing.T) {
	ctx := context.Background()
	repo := gormpersistence.NewGormActionRepository(newTestDB(t))

	require.NoError(t, repo.SaveBatch(ctx, makeActions("b1", 1, 10)))
	require.NoError(t, repo.SaveBatch(ctx, makeActions("b2", 1, 3)))

	boards, err := repo.BoardsExceeding(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, boards)

	oldest, err := repo.OldestBeyond(ctx, "b1", 4, 100)
	require.NoError(t, err)
	require.Len(t, oldest, 6)
	assert.Equal(t, uint64(1), oldest[0].Seq)
	assert.Equal(t, uint64(6), oldest[5].Seq)

	limited, err := repo.OldestBeyond(ctx, "b1", 4, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	deleted, err := repo.DeleteThrough(ctx, "b1", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(6), deleted)

	remaining, err := repo.Recent(ctx, "b1", 0, 100)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
	assert.Equal(t, uint64(7), remaining[3].Seq, "只裁剪最旧的一端")

	none, err := repo.OldestBeyond(ctx, "b2", 4, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

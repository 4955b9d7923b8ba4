package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
	httpHandler "collaborative-board/internal/handler/http"
	"collaborative-board/internal/middleware"
	"collaborative-board/internal/repository"
	"collaborative-board/internal/repository/mocks"
	"collaborative-board/internal/service"
)

type kickCall struct {
	boardID string
	userID  uint
}

type fakeKicker struct {
	calls []kickCall
}

func (f *fakeKicker) Kick(boardID string, userID uint) int {
	f.calls = append(f.calls, kickCall{boardID, userID})
	return 2
}

const ownerID uint = 1

// fakeHistory 返回固定的操作并记录请求的 limit
type fakeHistory struct {
	actions []domain.Action
	err     error
	limits  []int
}

func (f *fakeHistory) Recent(_ context.Context, _ string, limit int) ([]domain.Action, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.actions) > limit {
		return f.actions[:limit], nil
	}
	return f.actions, nil
}

func setupBoardRouter(t *testing.T, caller uint) (*gin.Engine, *mocks.BoardRepository, *mocks.UserRepository, *fakeKicker) {
	return setupBoardRouterWithHistory(t, caller, &fakeHistory{})
}

func setupBoardRouterWithHistory(t *testing.T, caller uint, history service.HistoryReader) (*gin.Engine, *mocks.BoardRepository, *mocks.UserRepository, *fakeKicker) {
	gin.SetMode(gin.TestMode)
	boardRepo := mocks.NewBoardRepository(t)
	userRepo := mocks.NewUserRepository(t)
	kicker := &fakeKicker{}
	h := httpHandler.NewBoardHandler(service.NewBoardService(boardRepo, userRepo, service.NewAccessGuard(boardRepo), history), kicker)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &domain.User{ID: caller, Username: "caller"})
		c.Next()
	})
	r.GET("/boards", h.ListBoards)
	r.POST("/boards", h.CreateBoard)
	r.GET("/boards/:id", h.GetBoard)
	r.GET("/boards/:id/history", h.GetHistory)
	r.POST("/boards/:id/collaborators", h.AddCollaborator)
	r.DELETE("/boards/:id/collaborators/:userId", h.RemoveCollaborator)
	r.POST("/boards/:id/kick/:userId", h.KickUser)
	return r, boardRepo, userRepo, kicker
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func privateBoard() *domain.Board {
	return &domain.Board{ID: "b1", Name: "Plan", OwnerID: ownerID,
		Collaborators: []domain.BoardCollaborator{{BoardID: "b1", UserID: 2}}}
}

func TestBoardHandler_CreateBoard(t *testing.T) {
	r, boardRepo, _, _ := setupBoardRouter(t, ownerID)
	boardRepo.On("Save", mock.Anything, mock.MatchedBy(func(b *domain.Board) bool {
		return b.Name == "Sprint" && b.OwnerID == ownerID && b.ID != ""
	})).Return(nil).Once()

	w := doJSON(r, http.MethodPost, "/boards", httpHandler.CreateBoardRequest{Name: "Sprint"})
	require.Equal(t, http.StatusCreated, w.Code)

	var got domain.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Sprint", got.Name)
	assert.NotEmpty(t, got.ID)
}

func TestBoardHandler_CreateBoard_InvalidInput(t *testing.T) {
	r, _, _, _ := setupBoardRouter(t, ownerID)
	w := doJSON(r, http.MethodPost, "/boards", map[string]string{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBoardHandler_GetBoard(t *testing.T) {
	tests := []struct {
		name   string
		caller uint
		board  *domain.Board
		err    error
		status int
	}{
		{"owner", ownerID, privateBoard(), nil, http.StatusOK},
		{"collaborator", 2, privateBoard(), nil, http.StatusOK},
		{"stranger", 3, privateBoard(), nil, http.StatusForbidden},
		{"missing", ownerID, nil, repository.ErrBoardNotFound, http.StatusNotFound},
		{"store down", ownerID, nil, errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, boardRepo, _, _ := setupBoardRouter(t, tt.caller)
			boardRepo.On("FindByID", mock.Anything, "b1").Return(tt.board, tt.err).Once()

			w := doJSON(r, http.MethodGet, "/boards/b1", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestBoardHandler_AddCollaborator(t *testing.T) {
	r, boardRepo, userRepo, _ := setupBoardRouter(t, ownerID)
	boardRepo.On("FindByID", mock.Anything, "b1").Return(privateBoard(), nil).Once()
	userRepo.On("FindByID", mock.Anything, uint(5)).Return(&domain.User{ID: 5}, nil).Once()
	boardRepo.On("AddCollaborator", mock.Anything, "b1", uint(5)).Return(nil).Once()

	w := doJSON(r, http.MethodPost, "/boards/b1/collaborators", httpHandler.AddCollaboratorRequest{UserID: 5})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBoardHandler_RemoveCollaborator_NotOwner(t *testing.T) {
	r, boardRepo, _, _ := setupBoardRouter(t, 2)
	boardRepo.On("FindByID", mock.Anything, "b1").Return(privateBoard(), nil).Once()

	w := doJSON(r, http.MethodDelete, "/boards/b1/collaborators/2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	boardRepo.AssertNotCalled(t, "RemoveCollaborator", mock.Anything, mock.Anything, mock.Anything)
}

func TestBoardHandler_KickUser(t *testing.T) {
	r, boardRepo, _, kicker := setupBoardRouter(t, ownerID)
	boardRepo.On("FindByID", mock.Anything, "b1").Return(privateBoard(), nil).Once()

	w := doJSON(r, http.MethodPost, "/boards/b1/kick/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []kickCall{{"b1", 2}}, kicker.calls)

	w = doJSON(r, http.MethodPost, "/boards/b1/kick/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, kicker.calls, 1)
}

func TestBoardHandler_ListBoards(t *testing.T) {
	r, boardRepo, _, _ := setupBoardRouter(t, ownerID)
	boards := []domain.Board{*privateBoard(), {ID: "b2", Name: "Public", OwnerID: 9, IsPublic: true}}
	boardRepo.On("ListAccessible", mock.Anything, ownerID, 2, 2).Return(boards, int64(5), nil).Once()

	w := doJSON(r, http.MethodGet, "/boards?page=2&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got dto.BoardPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Boards, 2)
	assert.Equal(t, "b1", got.Boards[0].ID)
	assert.Equal(t, dto.Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, got.Pagination)
}

func TestBoardHandler_ListBoards_Errors(t *testing.T) {
	r, boardRepo, _, _ := setupBoardRouter(t, ownerID)

	w := doJSON(r, http.MethodGet, "/boards?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	boardRepo.On("ListAccessible", mock.Anything, ownerID, 0, 10).Return(nil, int64(0), errors.New("connection refused")).Once()
	w = doJSON(r, http.MethodGet, "/boards", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBoardHandler_GetHistory(t *testing.T) {
	history := &fakeHistory{actions: []domain.Action{
		{BoardID: "b1", Seq: 3, Kind: domain.ActionDraw, Data: `{"points":[0,0,1,1]}`, UserID: 2},
		{BoardID: "b1", Seq: 2, Kind: domain.ActionDraw, Data: `{"points":[1,1,2,2]}`, UserID: 1},
		{BoardID: "b1", Seq: 1, Kind: domain.ActionDraw, Data: `{"points":[2,2,3,3]}`, UserID: 1},
	}}
	r, boardRepo, _, _ := setupBoardRouterWithHistory(t, 2, history)
	boardRepo.On("FindByID", mock.Anything, "b1").Return(privateBoard(), nil).Twice()

	w := doJSON(r, http.MethodGet, "/boards/b1/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.BoardHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "b1", got.BoardID)
	require.Len(t, got.History, 2)
	assert.Equal(t, uint64(3), got.History[0].Seq, "newest first")

	w = doJSON(r, http.MethodGet, "/boards/b1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{2, service.DefaultReplayLimit}, history.limits)
}

func TestBoardHandler_GetHistory_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		caller  uint
		query   string
		history *fakeHistory
		status  int
	}{
		{"stranger", 3, "", &fakeHistory{}, http.StatusForbidden},
		{"bad limit", ownerID, "?limit=-1", &fakeHistory{}, http.StatusBadRequest},
		{"history down", ownerID, "", &fakeHistory{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, boardRepo, _, _ := setupBoardRouterWithHistory(t, tt.caller, tt.history)
			if tt.status != http.StatusBadRequest {
				boardRepo.On("FindByID", mock.Anything, "b1").Return(privateBoard(), nil).Once()
			}
			w := doJSON(r, http.MethodGet, "/boards/b1/history"+tt.query, nil)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Empty(t, tt.history.limits, "history must not be read without access")
			}
		})
	}
}

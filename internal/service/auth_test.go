package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
	"collaborative-board/internal/repository/mocks"
	"collaborative-board/internal/service"
)

func newAuthService(t *testing.T, secret string) (*service.AuthService, *mocks.UserRepository) {
	userRepo := mocks.NewUserRepository(t)
	authService, err := service.NewAuthService(userRepo, secret, 1)
	require.NoError(t, err)
	return authService, userRepo
}

func TestNewAuthService_EmptySecret(t *testing.T) {
	_, err := service.NewAuthService(new(mocks.UserRepository), "", 1)
	assert.Error(t, err)
}

// --- Register ---

func TestAuthService_Register_Success(t *testing.T) {
	authService, userRepo := newAuthService(t, "very-secret-key")
	ctx := context.Background()

	userRepo.On("FindByUsername", ctx, "newbie").Return(nil, repository.ErrUserNotFound).Once()
	userRepo.On("Save", ctx, mock.MatchedBy(func(user *domain.User) bool {
		return user.Username == "newbie" &&
			bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("StrongPass123")) == nil
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.User).ID = 5
	}).Return(nil).Once()

	user, err := authService.Register(ctx, "  newbie ", "StrongPass123", "newbie@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint(5), user.ID)
	assert.Equal(t, "newbie", user.Username)
	assert.Empty(t, user.Password, "返回的用户不应包含密码哈希")
}

func TestAuthService_Register_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		setup    func(*mocks.UserRepository)
		wantErr  error
	}{
		{
			name: "short password", username: "bob", password: "123",
			setup:   func(*mocks.UserRepository) {},
			wantErr: service.ErrInvalidInput,
		},
		{
			name: "username taken", username: "existing", password: "password",
			setup: func(r *mocks.UserRepository) {
				r.On("FindByUsername", mock.Anything, "existing").Return(&domain.User{ID: 10}, nil).Once()
			},
			wantErr: service.ErrRegistrationFailed,
		},
		{
			name: "unique index conflict", username: "racer", password: "password",
			setup: func(r *mocks.UserRepository) {
				r.On("FindByUsername", mock.Anything, "racer").Return(nil, repository.ErrUserNotFound).Once()
				r.On("Save", mock.Anything, mock.AnythingOfType("*domain.User")).Return(repository.ErrDuplicateEntry).Once()
			},
			wantErr: service.ErrRegistrationFailed,
		},
		{
			name: "store down", username: "carol", password: "password",
			setup: func(r *mocks.UserRepository) {
				r.On("FindByUsername", mock.Anything, "carol").Return(nil, errors.New("connection refused")).Once()
			},
			wantErr: service.ErrUpstreamUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, userRepo := newAuthService(t, "secret")
			tt.setup(userRepo)

			_, err := authService.Register(context.Background(), tt.username, tt.password, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- Login ---

func TestAuthService_Login_Success(t *testing.T) {
	authService, userRepo := newAuthService(t, "test-secret")
	ctx := context.Background()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	userRepo.On("FindByUsername", ctx, "testuser").
		Return(&domain.User{ID: 1, Username: "testuser", Password: string(hashed)}, nil).Once()

	creds, err := authService.Login(ctx, "testuser", "password123")
	require.NoError(t, err)
	assert.Equal(t, uint(1), creds.User.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), creds.ExpiresAt, time.Minute)

	userID, err := authService.ParseToken(creds.Token)
	require.NoError(t, err)
	assert.Equal(t, uint(1), userID)
}

func TestAuthService_Login_Failures(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	tests := []struct {
		name     string
		user     *domain.User
		repoErr  error
		password string
		wantErr  error
	}{
		{"user not found", nil, repository.ErrUserNotFound, "password123", service.ErrAuthenticationFailed},
		{"wrong password", &domain.User{ID: 1, Password: string(hashed)}, nil, "wrongpassword", service.ErrAuthenticationFailed},
		{"store down", nil, errors.New("timeout"), "password123", service.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, userRepo := newAuthService(t, "test-secret")
			userRepo.On("FindByUsername", mock.Anything, "testuser").Return(tt.user, tt.repoErr).Once()

			creds, err := authService.Login(context.Background(), "testuser", tt.password)
			assert.Nil(t, creds)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- Authenticate ---

func TestAuthService_Authenticate_Success(t *testing.T) {
	authService, userRepo := newAuthService(t, "test-secret")
	ctx := context.Background()

	token, err := authService.IssueToken(7)
	require.NoError(t, err)
	userRepo.On("FindByID", ctx, uint(7)).Return(&domain.User{ID: 7, Username: "alice", Password: "hash"}, nil).Once()

	user, err := authService.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), user.ID)
	assert.Empty(t, user.Password, "不应向调用方暴露密码哈希")
}

func TestAuthService_Authenticate_Rejects(t *testing.T) {
	authService, userRepo := newAuthService(t, "test-secret")
	other, _ := newAuthService(t, "other-secret")

	foreign, err := other.IssueToken(7)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"malformed":    "not-a-jwt",
		"wrong secret": foreign,
		"whitespace":   "   ",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := authService.Authenticate(context.Background(), token)
			assert.ErrorIs(t, err, service.ErrUnauthenticated)
		})
	}
	userRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestAuthService_Authenticate_UnknownUser(t *testing.T) {
	authService, userRepo := newAuthService(t, "test-secret")
	ctx := context.Background()
	token, _ := authService.IssueToken(9)

	userRepo.On("FindByID", ctx, uint(9)).Return(nil, repository.ErrUserNotFound).Once()
	_, err := authService.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	userRepo.On("FindByID", ctx, uint(9)).Return(nil, errors.New("connection refused")).Once()
	_, err = authService.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrUpstreamUnavailable, "用户存储故障不应被当作认证失败")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, service.CodeAccessDenied, service.ErrorCode(service.ErrAccessDenied))
	assert.Equal(t, service.CodeNotInRoom, service.ErrorCode(service.ErrNotInRoom))
	assert.Equal(t, service.CodeMalformedEvent, service.ErrorCode(domain.ErrInvalidPayload))
	assert.Equal(t, service.CodeUpstreamUnavailable, service.ErrorCode(context.DeadlineExceeded))
	assert.Equal(t, service.CodeInternal, service.ErrorCode(errors.New("boom")))
	assert.Empty(t, service.ErrorCode(nil))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
)

// AuthService 负责用户认证相关的业务逻辑。
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewAuthService 创建 AuthService 实例，jwtExpiryHours <= 0 时使用 24 小时。
func NewAuthService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Register 处理用户注册。
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "email": email})

	// 1. 基本验证
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if len(username) > 50 || len(password) < 6 {
		return nil, fmt.Errorf("%w: username must be at most 50 characters and password at least 6", ErrInvalidInput)
	}

	// 2. 检查用户名是否已被占用
	existing, err := s.userRepo.FindByUsername(ctx, username)
	switch {
	case err == nil && existing != nil:
		logCtx.Warn("Registration failed: Username already exists")
		return nil, ErrRegistrationFailed
	case err != nil && !errors.Is(err, repository.ErrUserNotFound):
		logCtx.WithError(err).Error("Database error while checking username")
		return nil, ErrUpstreamUnavailable
	}

	// 3. 哈希密码
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	// 4. 保存用户，唯一索引兜底并发注册
	user := &domain.User{
		Username: username,
		Password: string(hashed),
		Email:    email,
	}

	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: Username or email already exists")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = ""
	return user, nil
}

// Credentials 是登录成功后签发给客户端的凭证
type Credentials struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      domain.UserSummary `json:"user"`
}

// Claims 是会话 token 的载荷
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// Login 校验用户名和密码并签发 token。用户不存在和密码错误返回同一个错误。
func (s *AuthService) Login(ctx context.Context, username, password string) (*Credentials, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	switch {
	case errors.Is(err, repository.ErrUserNotFound), err == nil && user == nil:
		logCtx.Warn("Login attempt failed: User not found")
		return nil, ErrAuthenticationFailed
	case err != nil:
		logCtx.WithError(err).Error("Login attempt failed: Error finding user")
		return nil, ErrUpstreamUnavailable
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		logCtx.Warn("Login attempt failed: Invalid password")
		return nil, ErrAuthenticationFailed
	}

	creds, err := s.issue(user)
	if err != nil {
		logCtx.WithError(err).Error("Failed to sign token during login")
		return nil, ErrInternalServer
	}
	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return creds, nil
}

func (s *AuthService) issue(user *domain.User) (*Credentials, error) {
	now := time.Now()
	expiresAt := now.Add(s.jwtExpiry)
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Credentials{Token: token, ExpiresAt: expiresAt.UTC(), User: user.Summary()}, nil
}

// IssueToken 为指定用户签发 token (boardctl 和测试使用)
func (s *AuthService) IssueToken(userID uint) (string, error) {
	creds, err := s.issue(&domain.User{ID: userID})
	if err != nil {
		return "", err
	}
	return creds.Token, nil
}

// Authenticate 校验 bearer token 并解析为已知用户。
// token 缺失、格式错误、过期或用户不存在都返回 ErrUnauthenticated；
// 用户存储不可用时返回 ErrUpstreamUnavailable。
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := s.ParseToken(token)
	if err != nil {
		logrus.WithError(err).Debug("Authenticate: token rejected")
		return nil, ErrUnauthenticated
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logrus.WithField("user_id", userID).Warn("Authenticate: token refers to unknown user")
			return nil, ErrUnauthenticated
		}
		logrus.WithField("user_id", userID).WithError(err).Error("Authenticate: failed to load user")
		return nil, ErrUpstreamUnavailable
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	user.Password = ""
	return user, nil
}

// ParseToken 验证签名与过期时间并返回 user_id
func (s *AuthService) ParseToken(tokenStr string) (uint, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("token validation failed: %w", err)
	}
	if claims.UserID == 0 {
		return 0, errors.New("token has no user_id claim")
	}
	return claims.UserID, nil
}

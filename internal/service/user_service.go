// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"cemtras-go/internal/errs"
	"cemtras-go/internal/model"
	"cemtras-go/internal/repository"
	"cemtras-go/pkg/hash"
	"cemtras-go/pkg/kv"
	"cemtras-go/pkg/token"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService 接口定义了所有与用户凭证相关的业务操作。
// 登录与注册均不直接签发 token：完整认证由 OTP 验证环节完成。
type UserService interface {
	Register(fullName, email, mobile, password string) (*model.User, error)
	// Authenticate 校验登录标识（邮箱或手机号）与密码。
	Authenticate(identifier, password string) (*model.User, error)
	// IssueTokens 为用户签发 access/refresh token 对。
	IssueTokens(user *model.User) (accessToken, refreshToken string, err error)
	GetProfile(userID string) (*model.User, error)
	FindByMobile(mobile string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	// IsTokenRevoked 检查 token 是否已被登出拉黑。
	IsTokenRevoked(ctx context.Context, tokenString string) bool
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  kv.Store
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
// blacklist 用于存放已登出的 token（生产环境绑定 Redis）。
func NewUserService(userRepo repository.UserRepository, blacklist kv.Store, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

// normalizeEmail 规整邮箱：去空白并转小写，保证查重与登录匹配一致。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 处理用户注册的业务逻辑。
// 邮箱或手机号任一已存在时返回 errs.ErrDuplicateUser。
func (s *userService) Register(fullName, email, mobile, password string) (*model.User, error) {
	email = normalizeEmail(email)
	mobile = strings.TrimSpace(mobile)

	// 1. 查重：邮箱与手机号都不能与既有记录冲突
	if _, err := s.userRepo.FindByEmail(email); err == nil {
		return nil, errs.ErrDuplicateUser
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if _, err := s.userRepo.FindByMobile(mobile); err == nil {
		return nil, errs.ErrDuplicateUser
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户
	newUser := &model.User{
		ID:               uuid.NewString(),
		FullName:         fullName,
		Email:            email,
		Mobile:           mobile,
		Password:         hashedPassword,
		RegistrationDate: time.Now(),
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	return newUser, nil
}

// Authenticate 校验凭证。标识可以是邮箱或手机号。
func (s *userService) Authenticate(identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		identifier = normalizeEmail(identifier)
	}

	user, err := s.userRepo.FindByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	if !hash.CheckPasswordHash(password, user.Password) {
		return nil, errs.ErrInvalidCredentials
	}

	return user, nil
}

// IssueTokens 为用户签发 access token 和 refresh token。
func (s *userService) IssueTokens(user *model.User) (accessToken, refreshToken string, err error) {
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindByMobile 根据手机号查找用户，供 OTP 验证后签发 token 使用。
func (s *userService) FindByMobile(mobile string) (*model.User, error) {
	user, err := s.userRepo.FindByMobile(strings.TrimSpace(mobile))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Logout 处理用户登出逻辑：把 token 加入黑名单，持久化的用户记录保持不变。
// token 的剩余有效期作为黑名单键的过期时间。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil // 已过期的 token 无需拉黑
	}
	return s.blacklist.Set(ctx, "blacklist:"+tokenString, "true", expiration)
}

// IsTokenRevoked 检查 token 是否在黑名单中。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) bool {
	_, err := s.blacklist.Get(ctx, "blacklist:"+tokenString)
	return err == nil
}

// RefreshToken 验证 refresh token 并签发新的 token 对。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	return s.IssueTokens(user)
}

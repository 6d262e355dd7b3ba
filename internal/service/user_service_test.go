package service

import (
	"context"
	"testing"

	"cemtras-go/internal/errs"
	"cemtras-go/internal/model"
	"cemtras-go/pkg/kv"
	"cemtras-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memUserRepo 是 UserRepository 的内存实现，错误语义与 GORM 保持一致。
type memUserRepo struct {
	users []*model.User
}

func (r *memUserRepo) Create(user *model.User) error {
	r.users = append(r.users, user)
	return nil
}

func (r *memUserRepo) FindByEmail(email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) FindByMobile(mobile string) (*model.User, error) {
	for _, u := range r.users {
		if u.Mobile == mobile {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) FindByIdentifier(identifier string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == identifier || u.Mobile == identifier {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) FindByID(userID string) (*model.User, error) {
	for _, u := range r.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func newUserFixture(t *testing.T) UserService {
	t.Helper()
	jwtManager := token.NewJWTManager("test-secret", 1, 7)
	return NewUserService(&memUserRepo{}, kv.NewMemoryStore(), jwtManager)
}

func TestRegisterAndAuthenticateByEitherIdentifier(t *testing.T) {
	svc := newUserFixture(t)

	user, err := svc.Register("Asha Verma", "Asha@Example.com ", "13800000001", "secret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	// 邮箱被规整为小写
	assert.Equal(t, "asha@example.com", user.Email)
	// 密码不以明文存储
	assert.NotEqual(t, "secret-pass", user.Password)

	byEmail, err := svc.Authenticate("asha@example.com", "secret-pass")
	require.NoError(t, err)
	byMobile, err := svc.Authenticate("13800000001", "secret-pass")
	require.NoError(t, err)
	// 两种标识定位同一条记录
	assert.Equal(t, byEmail.ID, byMobile.ID)
}

func TestRegisterDuplicateEmailOrMobile(t *testing.T) {
	svc := newUserFixture(t)

	_, err := svc.Register("A", "a@example.com", "13800000001", "pass-1")
	require.NoError(t, err)

	_, err = svc.Register("B", "a@example.com", "13800000002", "pass-2")
	assert.ErrorIs(t, err, errs.ErrDuplicateUser)

	_, err = svc.Register("C", "c@example.com", "13800000001", "pass-3")
	assert.ErrorIs(t, err, errs.ErrDuplicateUser)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newUserFixture(t)

	_, err := svc.Register("A", "a@example.com", "13800000001", "correct-pass")
	require.NoError(t, err)

	_, err = svc.Authenticate("a@example.com", "wrong-pass")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = svc.Authenticate("nobody@example.com", "whatever")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestIssueTokensAndRefresh(t *testing.T) {
	svc := newUserFixture(t)

	user, err := svc.Register("A", "a@example.com", "13800000001", "pass")
	require.NoError(t, err)

	access, refresh, err := svc.IssueTokens(user)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	newAccess, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newUserFixture(t)
	ctx := context.Background()

	user, err := svc.Register("A", "a@example.com", "13800000001", "pass")
	require.NoError(t, err)
	access, _, err := svc.IssueTokens(user)
	require.NoError(t, err)

	assert.False(t, svc.IsTokenRevoked(ctx, access))
	require.NoError(t, svc.Logout(ctx, access))
	assert.True(t, svc.IsTokenRevoked(ctx, access))
}

func TestGetProfileUnknownUser(t *testing.T) {
	svc := newUserFixture(t)
	_, err := svc.GetProfile("missing-id")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

package usecase

import (
	"context"
	"net/http"
	"testing"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByID(ctx context.Context, id int64) (model.User, error) {
	panic("not used in AuthUsecase tests")
}

func (m *UserRepoMock) Create(ctx context.Context, u model.User) (model.User, error) {
	args := m.Called(ctx, u)
	created, _ := args.Get(0).(model.User)
	return created, args.Error(1)
}

const testJWTSecret = "test-secret"

func TestRegister_Success(t *testing.T) {
	users := &UserRepoMock{}
	uc := NewAuthUsecase(users, testJWTSecret)

	users.On("FindByEmail", mock.Anything, "taro@example.com").Return(model.User{}, repo.ErrNotFound)
	users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		//保存するのは平文ではなくbcryptハッシュ
		return u.Email == "taro@example.com" &&
			u.PasswordHash != "password123" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")) == nil
	})).Return(model.User{ID: 1, Email: "taro@example.com", Name: "Taro"}, nil)

	out, err := uc.Register(context.Background(), RegisterInput{
		Email:    "Taro@Example.com",
		Name:     "Taro",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "taro@example.com", out.Email)
}

func TestRegister_Validation(t *testing.T) {
	uc := NewAuthUsecase(&UserRepoMock{}, testJWTSecret)

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Name: "Taro", Password: "password123"}},
		{"empty name", RegisterInput{Email: "taro@example.com", Name: "", Password: "password123"}},
		{"short password", RegisterInput{Email: "taro@example.com", Name: "Taro", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Register(context.Background(), tc.in)
			he, ok := AsHTTPError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, he.Status)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := &UserRepoMock{}
	uc := NewAuthUsecase(users, testJWTSecret)

	users.On("FindByEmail", mock.Anything, "taro@example.com").
		Return(model.User{ID: 1, Email: "taro@example.com"}, nil)

	_, err := uc.Register(context.Background(), RegisterInput{
		Email:    "taro@example.com",
		Name:     "Taro",
		Password: "password123",
	})

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLogin_Success(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &UserRepoMock{}
	uc := NewAuthUsecase(users, testJWTSecret)
	users.On("FindByEmail", mock.Anything, "taro@example.com").
		Return(model.User{ID: 1, Email: "taro@example.com", Name: "Taro", PasswordHash: string(hash)}, nil)

	out, err := uc.Login(context.Background(), LoginInput{Email: "taro@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)

	//発行したトークンは自分の秘密鍵で検証できてsubが入っている
	tok, err := jwt.Parse(out.AccessToken, func(t *jwt.Token) (any, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := tok.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.EqualValues(t, 1, claims["sub"])
	assert.Equal(t, "taro@example.com", claims["email"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &UserRepoMock{}
	uc := NewAuthUsecase(users, testJWTSecret)
	users.On("FindByEmail", mock.Anything, "taro@example.com").
		Return(model.User{ID: 1, Email: "taro@example.com", PasswordHash: string(hash)}, nil)
	users.On("FindByEmail", mock.Anything, "nobody@example.com").
		Return(model.User{}, repo.ErrNotFound)

	//パスワード違いも未登録メールも同じ応答にする
	_, err1 := uc.Login(context.Background(), LoginInput{Email: "taro@example.com", Password: "wrong-password"})
	_, err2 := uc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "password123"})

	he1, ok := AsHTTPError(err1)
	require.True(t, ok)
	he2, ok := AsHTTPError(err2)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he1.Status)
	assert.Equal(t, he1.Message, he2.Message)
	assert.Equal(t, he1.Status, he2.Status)
}

package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/pkg/model"
	"microblog/pkg/repo"
	"microblog/pkg/service"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Comment{}))
	return db
}

func TestRegisterHashesPassword(t *testing.T) {
	db := setupTestDB(t)
	users := repo.NewUserRepository(db)
	auth := service.NewAuthenticator(users)

	id, err := auth.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.NotZero(t, id)

	stored, err := users.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.Password)
	assert.True(t, strings.HasPrefix(stored.Password, "$2"), "expected a bcrypt hash, got %q", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret")))
}

func TestAuthenticateSuccess(t *testing.T) {
	db := setupTestDB(t)
	auth := service.NewAuthenticator(repo.NewUserRepository(db))

	id, err := auth.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	user, err := auth.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	db := setupTestDB(t)
	auth := service.NewAuthenticator(repo.NewUserRepository(db))

	_, err := auth.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	_, wrongPwErr := auth.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, wrongPwErr, service.ErrInvalidCredentials)

	_, noUserErr := auth.Authenticate(context.Background(), "nobody", "secret")
	assert.ErrorIs(t, noUserErr, service.ErrInvalidCredentials)

	// A wrong password and an unknown username must be indistinguishable.
	assert.Equal(t, wrongPwErr, noUserErr)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	auth := service.NewAuthenticator(repo.NewUserRepository(db))

	_, err := auth.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	_, err = auth.Register(context.Background(), "alice", "other")
	assert.Error(t, err)
}

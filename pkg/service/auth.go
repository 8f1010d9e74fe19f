// Package service holds the credential logic: registration hashes passwords
// before they reach the store, authentication verifies them against the
// stored hash.
package service

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"microblog/pkg/model"
	"microblog/pkg/repo"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords,
// so the login surface cannot be used to probe which usernames exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Authenticator interface {
	// Authenticate returns the matching user, ErrInvalidCredentials on a
	// bad username/password pair, or a wrapped store error. Store errors
	// never fall through to a successful login.
	Authenticate(ctx context.Context, username, password string) (*model.User, error)

	// Register hashes the password and persists the user, returning the
	// store-assigned ID.
	Register(ctx context.Context, username, password string) (uint, error)
}

type authenticator struct {
	users repo.UserRepository
}

func NewAuthenticator(users repo.UserRepository) Authenticator {
	return &authenticator{users: users}
}

func (a *authenticator) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (a *authenticator) Register(ctx context.Context, username, password string) (uint, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, errors.Wrap(err, "failed to hash password")
	}

	user := &model.User{
		Username: username,
		Password: string(hashed),
	}
	if err := a.users.Save(ctx, user); err != nil {
		return 0, errors.Wrap(err, "failed to create user")
	}
	return user.ID, nil
}

// Package authpw provides name/password account management.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"timeline/api/internal/store"
	"timeline/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNameTaken          = errors.New("name already registered")
	ErrInvalidCredentials = errors.New("invalid name or password")
)

// UserStore is the slice of storage the auth service needs.
type UserStore interface {
	GetUserByName(ctx context.Context, name string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// SignUp registers a new account with a bcrypt-hashed password.
func (s *Service) SignUp(ctx context.Context, name, password string) (store.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.User{}, errors.New("name is required")
	}
	if len(password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	_, err := s.store.GetUserByName(ctx, name)
	if err == nil {
		return store.User{}, ErrNameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("user"),
		Name:         name,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// SignIn verifies credentials and returns the account.
func (s *Service) SignIn(ctx context.Context, name, password string) (store.User, error) {
	name = strings.TrimSpace(name)
	user, err := s.store.GetUserByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

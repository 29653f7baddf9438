// Package authpw provides email/password accounts.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"qdamono/server/internal/store"
	"qdamono/server/internal/util"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var validate = validator.New()

// UserStore is the slice of the document store accounts live in.
type UserStore interface {
	Insert(ctx context.Context, user store.User) error
	Find(ctx context.Context, field, value string) ([]store.User, error)
}

// Service provides email/password authentication
type Service struct {
	users UserStore
	cost  int
	now   func() time.Time
}

// NewService creates a new auth service
func NewService(users UserStore) *Service {
	return &Service{users: users, cost: bcrypt.DefaultCost, now: time.Now}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
}

// SignUp creates a new user account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validate.Struct(req); err != nil {
		return store.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.users.Find(ctx, "email", req.Email)
	if err != nil {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}
	if len(existing) > 0 {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID(""),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignIn checks credentials and returns the matching account.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return store.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	users, err := s.users.Find(ctx, "email", req.Email)
	if err != nil {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}
	if len(users) == 0 {
		return store.User{}, ErrInvalidCredentials
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

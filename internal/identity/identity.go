// Package identity is the session/identity collaborator: it owns account
// creation and credential checks, while session continuity is the API
// layer's token concern.
package identity

import (
	"context"
	"errors"
	"strings"

	"pharmacare/m/domain"
	"pharmacare/m/internal/store"
)

// Service authenticates and registers pharmacy staff.
//
// Passwords are stored and compared in the clear. That mirrors the
// product's current behavior and is a documented weakness; hardening it
// is out of scope here.
type Service struct {
	store *store.Store
}

// New constructs a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Login returns the user when the username exists and the password
// matches, and ErrInvalidCredentials otherwise.
func (s *Service) Login(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if user.Password != password {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Signup creates a new account and returns it, failing with
// ErrUsernameTaken when the username already exists.
func (s *Service) Signup(ctx context.Context, username, password string, role domain.Role) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, domain.NewValidationError("username and password are required")
	}
	if !role.IsValid() {
		return domain.User{}, domain.NewValidationError("unknown role %q", role)
	}

	user := domain.User{
		ID:       domain.NewID("user"),
		Username: username,
		Password: password,
		Role:     role,
	}
	if err := s.store.AddUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return domain.User{}, domain.ErrUsernameTaken
		}
		return domain.User{}, err
	}
	return user, nil
}

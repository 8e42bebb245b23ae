// Package users handles registration, login and profile management.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	"github.com/fyrsmithlabs/digitaltwin/pkg/auth"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ErrBadCredentials is returned by Login for an unknown email or a wrong
// password alike.
var ErrBadCredentials = v1.Unauthorized("incorrect email or password")

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

// LoginRequest is the body of a login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate replaces the profile. Name and occupation change only when
// provided; goals, personality and life areas are replaced wholesale.
type ProfileUpdate struct {
	Name        *string           `json:"name"`
	Occupation  *string           `json:"occupation"`
	Goals       map[string]string `json:"goals"`
	Personality map[string]string `json:"personality"`
	LifeAreas   []string          `json:"life_areas"`
}

// Service manages user accounts.
type Service struct {
	store *store.Store
}

// NewService returns a Service backed by s.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Register creates an account. The email is lower-cased before storage.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, v1.Invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &store.User{
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and returns the matching user.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (*store.User, error) {
	return s.store.GetUser(ctx, id)
}

// Exists returns nil when the user exists and a not-found error otherwise.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.store.GetUser(ctx, id)
	return err
}

// UpdateProfile applies upd to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*store.User, error) {
	var out *store.User
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			u.Name = upd.Name
		}
		if upd.Occupation != nil {
			u.Occupation = upd.Occupation
		}
		u.Goals = upd.Goals
		u.Personality = upd.Personality
		u.LifeAreas = upd.LifeAreas
		if err := tx.UpdateProfile(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

// Delete removes the account and everything it owns.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", v1.Invalid(fmt.Sprintf("%q is not a valid email address", raw))
	}
	return email, nil
}

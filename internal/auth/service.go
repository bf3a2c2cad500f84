// Package auth resolves logins against the fixed identity allowlist and
// the persisted credential profiles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/store"
)

// minPasswordLen is the minimum accepted password length.
const minPasswordLen = 4

var (
	// ErrUnknownUser means the email is not in the allowlist.
	ErrUnknownUser = errors.New("auth: email not in allowlist")

	// ErrNoProfile means the allowlisted user has not created a
	// password yet; the caller should run the first-login flow.
	ErrNoProfile = errors.New("auth: no profile, password creation required")

	// ErrWrongPassword means the credentials did not match.
	ErrWrongPassword = errors.New("auth: wrong password")

	// ErrProfileExists means Register was called for an email that
	// already has a profile.
	ErrProfileExists = errors.New("auth: profile already exists")

	// ErrWeakPassword means the password is shorter than the minimum.
	ErrWeakPassword = fmt.Errorf("auth: password must have at least %d characters", minPasswordLen)
)

// Service verifies credentials and manages first-login registration.
// Passwords are stored as bcrypt hashes.
type Service struct {
	store     store.Store
	directory *model.Directory
}

// NewService creates an auth service over the given store and allowlist.
func NewService(s store.Store, d *model.Directory) *Service {
	return &Service{store: s, directory: d}
}

// Lookup resolves an email against the allowlist and reports whether a
// credential profile exists yet. Used to route the login UI between the
// password and first-access steps.
func (s *Service) Lookup(ctx context.Context, email string) (model.User, bool, error) {
	email = normalizeEmail(email)

	user, ok := s.directory.ByEmail(email)
	if !ok {
		return model.User{}, false, ErrUnknownUser
	}

	_, err := s.store.ProfileByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return user, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return user, true, nil
}

// Login verifies a password against the persisted profile and returns
// the authenticated session.
func (s *Service) Login(ctx context.Context, email, password string) (model.Session, error) {
	email = normalizeEmail(email)

	if _, ok := s.directory.ByEmail(email); !ok {
		return model.Session{}, ErrUnknownUser
	}

	profile, err := s.store.ProfileByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, ErrNoProfile
	}
	if err != nil {
		return model.Session{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)) != nil {
		return model.Session{}, ErrWrongPassword
	}

	return model.Session{
		Name:  profile.Name,
		Email: profile.Email,
		Role:  profile.Role,
	}, nil
}

// Register handles the first login for an allowlisted email with no
// profile row: it hashes the password, persists the profile, and returns
// the authenticated session.
func (s *Service) Register(ctx context.Context, email, password string) (model.Session, error) {
	email = normalizeEmail(email)

	user, ok := s.directory.ByEmail(email)
	if !ok {
		return model.Session{}, ErrUnknownUser
	}
	if len(password) < minPasswordLen {
		return model.Session{}, ErrWeakPassword
	}

	if _, err := s.store.ProfileByEmail(ctx, email); err == nil {
		return model.Session{}, ErrProfileExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.Session{}, fmt.Errorf("hashing password: %w", err)
	}

	err = s.store.InsertProfile(ctx, model.Profile{
		Email:        email,
		Name:         user.Name,
		Role:         user.Role,
		PasswordHash: string(hash),
	})
	if err != nil {
		return model.Session{}, err
	}

	return model.Session{Name: user.Name, Email: email, Role: user.Role}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

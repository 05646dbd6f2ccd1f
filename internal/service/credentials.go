package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/repository"
	"github.com/iliyamo/library-auth/internal/utils"
)

const maxFieldLen = 255

// Credentials hashes and verifies passwords against the user store.
type Credentials struct {
	users     UserStore
	cost      int
	minLen    int
	dummyHash string
}

// NewCredentials prepares a verifier.  A throwaway hash at the configured
// cost is computed once so unknown emails pay the same bcrypt price as
// known ones.
func NewCredentials(users UserStore, cost, minLen int) (*Credentials, error) {
	dummy, err := utils.HashPassword("library-auth-dummy-password", cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Credentials{users: users, cost: cost, minLen: minLen, dummyHash: dummy}, nil
}

// NewUser describes a registration request.
type NewUser struct {
	Email       string
	Password    string
	DisplayName *string
	Role        string  // empty means staff
	BranchID    *uint64 // only set by administrative seeding
}

// Register validates input, hashes the password and stores the user with
// the defaults role=staff, is_active=true and theme=light.
func (c *Credentials) Register(ctx context.Context, in NewUser) (model.User, error) {
	email := repository.NormalizeEmail(in.Email)
	verr := newValidationError()
	validateEmail(verr, email)
	switch {
	case in.Password == "":
		verr.add("password", "required")
	case !utils.PasswordLongEnough(in.Password, c.minLen):
		verr.add("password", fmt.Sprintf("must be at least %d characters", c.minLen))
		verr.cause = ErrWeakPassword
	case len(in.Password) > utils.MaxPasswordBytes:
		verr.add("password", fmt.Sprintf("must be at most %d bytes", utils.MaxPasswordBytes))
	}
	display := normalizeDisplayName(verr, in.DisplayName)
	role := in.Role
	if role == "" {
		role = model.RoleStaff
	}
	if !model.ValidRole(role) {
		verr.add("role", "must be admin or staff")
	}
	if err := verr.orNil(); err != nil {
		return model.User{}, err
	}

	hash, err := utils.HashPassword(in.Password, c.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := c.users.Create(ctx, model.User{
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		BranchID:        in.BranchID,
		DisplayName:     display,
		ThemePreference: model.ThemeLight,
		IsActive:        true,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, ErrDuplicateEmail
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	u, err := c.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("load new user: %w", err)
	}
	return u, nil
}

// Verify checks email and password.  Unknown email and wrong password both
// yield ErrBadCredentials.  The active flag is only consulted after the
// password matched; in that case the user is returned with
// ErrAccountInactive so callers can log who was refused.
func (c *Credentials) Verify(ctx context.Context, email, password string) (model.User, error) {
	email = repository.NormalizeEmail(email)
	verr := newValidationError()
	if email == "" {
		verr.add("email", "required")
	}
	if password == "" {
		verr.add("password", "required")
	}
	if err := verr.orNil(); err != nil {
		return model.User{}, err
	}

	u, err := c.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(c.dummyHash, password)
		return model.User{}, ErrBadCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrBadCredentials
	}
	if !u.IsActive {
		return u, ErrAccountInactive
	}
	return u, nil
}

func validateEmail(verr *ValidationError, email string) {
	if email == "" {
		verr.add("email", "required")
		return
	}
	if len(email) > maxFieldLen {
		verr.add("email", "too long")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		verr.add("email", "invalid address")
	}
}

// normalizeDisplayName trims the name and maps blank to nil.
func normalizeDisplayName(verr *ValidationError, name *string) *string {
	if name == nil {
		return nil
	}
	v := strings.TrimSpace(*name)
	if v == "" {
		return nil
	}
	if len([]rune(v)) > maxFieldLen {
		verr.add("display_name", "too long")
		return nil
	}
	return &v
}

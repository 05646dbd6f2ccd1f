package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/library-auth/internal/model"
)

const userColumns = "id,email,password_hash,role,branch_id,display_name,theme_preference,is_active,created_at,updated_at"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts user and returns its ID.  The password must already be
// hashed.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, branch_id, display_name, theme_preference, is_active) VALUES (?,?,?,?,?,?,?)",
		NormalizeEmail(u.Email), u.PasswordHash, u.Role, u.BranchID, u.DisplayName, u.ThemePreference, u.IsActive)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return 0, ErrEmailExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// UpdateDisplayName sets or clears the display name.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, id uint64, name *string) error {
	return r.updateOne(ctx, "UPDATE users SET display_name=? WHERE id=?", id, name)
}

// UpdateTheme stores the theme preference.
func (r *UserRepo) UpdateTheme(ctx context.Context, id uint64, theme string) error {
	return r.updateOne(ctx, "UPDATE users SET theme_preference=? WHERE id=?", id, theme)
}

// SetActive flips the is_active flag.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.updateOne(ctx, "UPDATE users SET is_active=? WHERE id=?", id, active)
}

// UpdateAccess sets role and branch scope together.
func (r *UserRepo) UpdateAccess(ctx context.Context, id uint64, role string, branchID *uint64) error {
	return r.updateOne(ctx, "UPDATE users SET role=?, branch_id=? WHERE id=?", id, role, branchID)
}

// updateOne runs a single-row UPDATE.  MySQL reports zero affected rows when
// the new value equals the old one, so a miss is confirmed with a lookup
// before ErrNotFound is returned.
func (r *UserRepo) updateOne(ctx context.Context, query string, id uint64, values ...any) error {
	res, err := r.DB.ExecContext(ctx, query, append(values, id)...)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u        model.User
		branchID sql.NullInt64
		display  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &branchID, &display,
		&u.ThemePreference, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	if branchID.Valid {
		b := uint64(branchID.Int64)
		u.BranchID = &b
	}
	if display.Valid {
		u.DisplayName = &display.String
	}
	return u, nil
}

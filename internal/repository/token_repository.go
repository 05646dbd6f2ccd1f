package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/library-auth/internal/model"
)

const tokenColumns = "token_hash,user_id,family_id,state,rotated_to,created_at,expires_at,revoked_at,user_agent,ip"

// TokenRepo is the MySQL refresh token ledger.  Rows are keyed by token
// hash; state only moves away from 'active' through the conditional
// UPDATEs below, which InnoDB serializes on the row lock.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert stores a new token record.
func (r *TokenRepo) Insert(ctx context.Context, t model.RefreshToken) error {
	return insertToken(ctx, r.DB, t)
}

func insertToken(ctx context.Context, db execer, t model.RefreshToken) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, family_id, state, created_at, expires_at, user_agent, ip) VALUES (?,?,?,?,?,?,?,?)",
		t.TokenHash, t.UserID, t.FamilyID, string(t.State), t.CreatedAt, t.ExpiresAt, t.UserAgent, t.IP)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Get loads a token record by hash.
func (r *TokenRepo) Get(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		state     string
		rotatedTo sql.NullString
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.TokenHash, &t.UserID, &t.FamilyID, &state, &rotatedTo,
		&t.CreatedAt, &t.ExpiresAt, &revokedAt, &t.UserAgent, &t.IP)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("select refresh token: %w", err)
	}
	t.State = model.TokenState(state)
	if rotatedTo.Valid {
		t.RotatedTo = &rotatedTo.String
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// Rotate moves tokenHash from active to rotated and inserts next in the same
// transaction.  If the row is no longer active the transaction is rolled back
// and ErrNotActive returned.
func (r *TokenRepo) Rotate(ctx context.Context, tokenHash string, next model.RefreshToken) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET state='rotated', rotated_to=? WHERE token_hash=? AND state='active'",
		next.TokenHash, tokenHash)
	if err != nil {
		return fmt.Errorf("mark rotated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotActive
	}
	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// Revoke marks a token as revoked if it is still active.  Terminal rows are
// left untouched.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET state='revoked', revoked_at=? WHERE token_hash=? AND state='active'",
		at, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeFamily revokes every active token of one rotation lineage.
func (r *TokenRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return r.revokeWhere(ctx, "family_id=?", familyID, at)
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	return r.revokeWhere(ctx, "user_id=?", userID, at)
}

func (r *TokenRepo) revokeWhere(ctx context.Context, cond string, arg any, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET state='revoked', revoked_at=? WHERE "+cond+" AND state='active'",
		at, arg)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes records that expired before the cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

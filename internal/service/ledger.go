package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/library-auth/internal/ids"
	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/queue"
	"github.com/iliyamo/library-auth/internal/repository"
	"github.com/iliyamo/library-auth/internal/utils"
)

// ClientMeta is request metadata recorded with a refresh token.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// IssuedRefresh is a freshly minted refresh token.  Token is the raw value
// and leaves the server exactly once.
type IssuedRefresh struct {
	Token     string
	ExpiresAt time.Time
	FamilyID  string
}

// Ledger owns every refresh token state transition:
//
//	active -> rotated   (Rotate)
//	active -> revoked   (Revoke, RevokeAllForUser, replay, expiry, deactivation)
//
// rotated and revoked are terminal.
type Ledger struct {
	store  LedgerStore
	users  UserStore
	hasher utils.RefreshHasher
	ttl    time.Duration
	settings
}

func NewLedger(store LedgerStore, users UserStore, refreshSecret string, ttl time.Duration, opts ...Option) *Ledger {
	return &Ledger{
		store:    store,
		users:    users,
		hasher:   utils.NewRefreshHasher(refreshSecret),
		ttl:      ttl,
		settings: newSettings("ledger", opts),
	}
}

// Create starts a new rotation family for userID.
func (l *Ledger) Create(ctx context.Context, userID uint64, meta ClientMeta) (IssuedRefresh, error) {
	issued, rec, err := l.mint(userID, ids.New(), meta)
	if err != nil {
		return IssuedRefresh{}, err
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		return IssuedRefresh{}, fmt.Errorf("store refresh token: %w", err)
	}
	return issued, nil
}

func (l *Ledger) mint(userID uint64, familyID string, meta ClientMeta) (IssuedRefresh, model.RefreshToken, error) {
	now := l.now().UTC()
	raw, err := utils.NewRefreshToken(now, l.ttl)
	if err != nil {
		return IssuedRefresh{}, model.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	rec := model.RefreshToken{
		TokenHash: l.hasher.Hash(raw.Raw),
		UserID:    userID,
		FamilyID:  familyID,
		State:     model.TokenActive,
		CreatedAt: now,
		ExpiresAt: raw.Exp,
		UserAgent: truncate(meta.UserAgent, 255),
		IP:        truncate(meta.IP, 64),
	}
	return IssuedRefresh{Token: raw.Raw, ExpiresAt: raw.Exp, FamilyID: familyID}, rec, nil
}

// Rotate exchanges a presented refresh token for its successor and returns
// the owner as currently stored.
//
// Unknown tokens fail with ErrTokenInvalid and expired ones with
// ErrTokenExpired.  A token that is no longer active, or that a concurrent
// caller rotated first, is a replay: its whole family is revoked and
// ErrReplayDetected returned.  An inactive owner gets ErrAccountInactive
// and loses the presented token.
func (l *Ledger) Rotate(ctx context.Context, raw string, meta ClientMeta) (IssuedRefresh, model.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return IssuedRefresh{}, model.User{}, ErrTokenInvalid
	}
	hash := l.hasher.Hash(raw)
	rec, err := l.store.Get(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return IssuedRefresh{}, model.User{}, ErrTokenInvalid
	}
	if err != nil {
		return IssuedRefresh{}, model.User{}, fmt.Errorf("load refresh token: %w", err)
	}
	now := l.now().UTC()

	if rec.State != model.TokenActive {
		return IssuedRefresh{}, model.User{}, l.replay(ctx, rec, now, meta)
	}
	if rec.Expired(now) {
		if err := l.store.Revoke(ctx, hash, now); err != nil {
			l.log.Warn().Err(err).Msg("revoke expired refresh token")
		}
		return IssuedRefresh{}, model.User{}, ErrTokenExpired
	}

	u, err := l.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := l.store.Revoke(ctx, hash, now); err != nil {
			l.log.Warn().Err(err).Uint64("user_id", rec.UserID).Msg("revoke orphaned refresh token")
		}
		return IssuedRefresh{}, model.User{}, ErrTokenInvalid
	}
	if err != nil {
		return IssuedRefresh{}, model.User{}, fmt.Errorf("load token owner: %w", err)
	}
	if !u.IsActive {
		if err := l.store.Revoke(ctx, hash, now); err != nil {
			return IssuedRefresh{}, model.User{}, fmt.Errorf("revoke inactive owner token: %w", err)
		}
		return IssuedRefresh{}, u, ErrAccountInactive
	}

	issued, next, err := l.mint(rec.UserID, rec.FamilyID, meta)
	if err != nil {
		return IssuedRefresh{}, model.User{}, err
	}
	err = l.store.Rotate(ctx, hash, next)
	if errors.Is(err, repository.ErrNotActive) {
		return IssuedRefresh{}, model.User{}, l.replay(ctx, rec, now, meta)
	}
	if err != nil {
		return IssuedRefresh{}, model.User{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return issued, u, nil
}

// replay revokes the lineage of a reused token.  When the owner has been
// deactivated in the meantime the caller sees ErrAccountInactive instead,
// since the revocation came from the deactivation and not from theft.
func (l *Ledger) replay(ctx context.Context, rec model.RefreshToken, now time.Time, meta ClientMeta) error {
	n, err := l.store.RevokeFamily(ctx, rec.FamilyID, now)
	if err != nil {
		return fmt.Errorf("revoke family after replay: %w", err)
	}
	if u, err := l.users.GetByID(ctx, rec.UserID); err == nil && !u.IsActive {
		return ErrAccountInactive
	}
	metrics.ReplayDetected.Inc()
	l.log.Warn().
		Uint64("user_id", rec.UserID).
		Str("family_id", rec.FamilyID).
		Str("state", string(rec.State)).
		Int64("revoked", n).
		Str("ip", meta.IP).
		Msg("refresh token replay detected")
	l.publish(ctx, queue.SessionEvent{
		Type:     queue.EventReplayDetected,
		UserID:   rec.UserID,
		FamilyID: rec.FamilyID,
		Revoked:  n,
		IP:       meta.IP,
	})
	return ErrReplayDetected
}

// Revoke ends the session behind raw.  Revoking a rotated or revoked token
// changes nothing and succeeds; an unknown token yields ErrTokenInvalid.
func (l *Ledger) Revoke(ctx context.Context, raw string) (model.RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.RefreshToken{}, ErrTokenInvalid
	}
	hash := l.hasher.Hash(raw)
	rec, err := l.store.Get(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RefreshToken{}, ErrTokenInvalid
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("load refresh token: %w", err)
	}
	if rec.State != model.TokenActive {
		return rec, nil
	}
	now := l.now().UTC()
	if err := l.store.Revoke(ctx, hash, now); err != nil {
		return model.RefreshToken{}, err
	}
	rec.State = model.TokenRevoked
	rec.RevokedAt = &now
	return rec, nil
}

// RevokeAllForUser revokes every active token of a user.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	n, err := l.store.RevokeAllForUser(ctx, userID, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return n, nil
}

// Sweep deletes records that expired more than retention ago.
func (l *Ledger) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return l.store.DeleteExpired(ctx, l.now().UTC().Add(-retention))
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *Ledger) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Sweep(ctx, retention)
			if err != nil {
				l.log.Error().Err(err).Msg("ledger sweep failed")
				continue
			}
			if n > 0 {
				l.log.Info().Int64("deleted", n).Msg("ledger sweep")
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

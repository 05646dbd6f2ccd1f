package service

import (
	"context"
	"time"

	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/queue"
)

// UserStore is the credential store.  Implementations return
// repository.ErrNotFound and repository.ErrEmailExists.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateDisplayName(ctx context.Context, id uint64, name *string) error
	UpdateTheme(ctx context.Context, id uint64, theme string) error
	SetActive(ctx context.Context, id uint64, active bool) error
	UpdateAccess(ctx context.Context, id uint64, role string, branchID *uint64) error
}

// LedgerStore persists refresh token records.  Rotate must be an atomic
// conditional transition: it fails with repository.ErrNotActive unless the
// presented record is still active at the moment of the write.
type LedgerStore interface {
	Insert(ctx context.Context, t model.RefreshToken) error
	Get(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	Rotate(ctx context.Context, tokenHash string, next model.RefreshToken) error
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// EventPublisher receives session events.  Publishing is best effort; the
// service logs failures and never fails a request because of them.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SessionEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.SessionEvent) error { return nil }

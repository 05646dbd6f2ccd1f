package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/library-auth/internal/model"
)

// MemoryUserStore keeps users in process memory.  It backs
// STORAGE_BACKEND=memory for local runs and the service tests.
type MemoryUserStore struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]model.User
	emails map[string]uint64
	now    func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:   make(map[uint64]model.User),
		emails: make(map[string]uint64),
		now:    time.Now,
	}
}

func (s *MemoryUserStore) Create(_ context.Context, u model.User) (uint64, error) {
	email := NormalizeEmail(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[email]; ok {
		return 0, ErrEmailExists
	}
	s.nextID++
	now := s.now().UTC()
	u.ID = s.nextID
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	s.byID[u.ID] = u
	s.emails[email] = u.ID
	return u.ID, nil
}

func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[NormalizeEmail(email)]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) UpdateDisplayName(_ context.Context, id uint64, name *string) error {
	return s.update(id, func(u *model.User) { u.DisplayName = name })
}

func (s *MemoryUserStore) UpdateTheme(_ context.Context, id uint64, theme string) error {
	return s.update(id, func(u *model.User) { u.ThemePreference = theme })
}

func (s *MemoryUserStore) SetActive(_ context.Context, id uint64, active bool) error {
	return s.update(id, func(u *model.User) { u.IsActive = active })
}

func (s *MemoryUserStore) UpdateAccess(_ context.Context, id uint64, role string, branchID *uint64) error {
	return s.update(id, func(u *model.User) {
		u.Role = role
		u.BranchID = branchID
	})
}

func (s *MemoryUserStore) update(id uint64, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now().UTC()
	s.byID[id] = u
	return nil
}

// MemoryTokenStore is an in-process refresh token ledger.  A single mutex
// makes every check-and-transition atomic.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]model.RefreshToken)}
}

func (s *MemoryTokenStore) Insert(_ context.Context, t model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.TokenHash] = t
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return model.RefreshToken{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryTokenStore) Rotate(_ context.Context, tokenHash string, next model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.State != model.TokenActive {
		return ErrNotActive
	}
	successor := next.TokenHash
	t.State = model.TokenRotated
	t.RotatedTo = &successor
	s.tokens[tokenHash] = t
	s.tokens[next.TokenHash] = next
	return nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok && t.State == model.TokenActive {
		s.tokens[tokenHash] = revoked(t, at)
	}
	return nil
}

func (s *MemoryTokenStore) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	return s.revokeWhere(func(t model.RefreshToken) bool { return t.FamilyID == familyID }, at), nil
}

func (s *MemoryTokenStore) RevokeAllForUser(_ context.Context, userID uint64, at time.Time) (int64, error) {
	return s.revokeWhere(func(t model.RefreshToken) bool { return t.UserID == userID }, at), nil
}

func (s *MemoryTokenStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.tokens, h)
			n++
		}
	}
	return n, nil
}

func (s *MemoryTokenStore) revokeWhere(match func(model.RefreshToken) bool, at time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.tokens {
		if t.State == model.TokenActive && match(t) {
			s.tokens[h] = revoked(t, at)
			n++
		}
	}
	return n
}

func revoked(t model.RefreshToken, at time.Time) model.RefreshToken {
	t.State = model.TokenRevoked
	t.RevokedAt = &at
	return t
}

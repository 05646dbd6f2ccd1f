package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/library-auth/internal/queue"
	"github.com/iliyamo/library-auth/internal/repository"
	"github.com/iliyamo/library-auth/internal/utils"
)

const refreshSecret = "refresh-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []queue.SessionEvent
}

func (r *eventRecorder) Publish(_ context.Context, ev queue.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) find(typ string) (queue.SessionEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return queue.SessionEvent{}, false
}

type fixture struct {
	clock    *testClock
	users    *repository.MemoryUserStore
	tokens   *repository.MemoryTokenStore
	issuer   *utils.TokenIssuer
	ledger   *Ledger
	sessions *SessionManager
	events   *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Now().UTC()}
	users := repository.NewMemoryUserStore()
	tokens := repository.NewMemoryTokenStore()
	events := &eventRecorder{}
	issuer := utils.NewTokenIssuer("access-secret", "library-auth", 15*time.Minute).WithClock(clock.Now)

	creds, err := NewCredentials(users, bcrypt.MinCost, 8)
	require.NoError(t, err)
	opts := []Option{WithClock(clock.Now), WithEvents(events)}
	ledger := NewLedger(tokens, users, refreshSecret, 720*time.Hour, opts...)
	return &fixture{
		clock:    clock,
		users:    users,
		tokens:   tokens,
		issuer:   issuer,
		ledger:   ledger,
		sessions: NewSessionManager(creds, issuer, ledger, users, opts...),
		events:   events,
	}
}

func (f *fixture) register(t *testing.T, email, password string) Session {
	t.Helper()
	sess, err := f.sessions.Register(context.Background(), RegisterInput{Email: email, Password: password}, ClientMeta{})
	require.NoError(t, err)
	return sess
}

func (f *fixture) admin(t *testing.T) Actor {
	t.Helper()
	created, err := f.sessions.EnsureAdmin(context.Background(), "admin@school.local", "Admin123!")
	require.NoError(t, err)
	require.True(t, created)
	u, err := f.users.GetByEmail(context.Background(), "admin@school.local")
	require.NoError(t, err)
	return Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) tokenState(t *testing.T, raw string) string {
	t.Helper()
	rec, err := f.tokens.Get(context.Background(), utils.NewRefreshHasher(refreshSecret).Hash(raw))
	require.NoError(t, err)
	return string(rec.State)
}

package natsverify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/utils"
)

func capture(h *VerifyHandler) *verifyResponse {
	var captured verifyResponse
	h.respondFn = func(_ *nats.Msg, resp verifyResponse) { captured = resp }
	return &captured
}

func request(t *testing.T, h *VerifyHandler, token string) {
	t.Helper()
	payload, err := json.Marshal(verifyRequest{Token: token})
	require.NoError(t, err)
	h.handle(&nats.Msg{Data: payload})
}

func TestVerifyHandlerSuccess(t *testing.T) {
	issuer := utils.NewTokenIssuer("access-secret", "library-auth", 15*time.Minute)
	branch := uint64(2)
	tok, err := issuer.Issue(model.User{ID: 11, Email: "a@school.local", Role: model.RoleAdmin, BranchID: &branch})
	require.NoError(t, err)

	h := NewVerifyHandler(issuer, zerolog.Nop())
	got := capture(h)
	request(t, h, tok.Token)

	assert.True(t, got.OK)
	assert.Equal(t, uint64(11), got.UserID)
	assert.Equal(t, model.RoleAdmin, got.Role)
	require.NotNil(t, got.BranchID)
	assert.Equal(t, branch, *got.BranchID)
	assert.Empty(t, got.Error)
}

func TestVerifyHandlerFailures(t *testing.T) {
	issuer := utils.NewTokenIssuer("access-secret", "library-auth", 15*time.Minute)
	other, err := utils.NewTokenIssuer("other", "library-auth", 15*time.Minute).Issue(model.User{ID: 1, Role: model.RoleStaff})
	require.NoError(t, err)
	old, err := utils.NewTokenIssuer("access-secret", "library-auth", time.Minute).
		WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).
		Issue(model.User{ID: 1, Role: model.RoleStaff})
	require.NoError(t, err)

	cases := map[string]string{
		other.Token: "wrong_key",
		old.Token:   "expired",
		"a.b.c":     "malformed",
	}
	for token, want := range cases {
		h := NewVerifyHandler(issuer, zerolog.Nop())
		got := capture(h)
		request(t, h, token)
		assert.False(t, got.OK)
		assert.Equal(t, want, got.Error)
	}
}

func TestVerifyHandlerBadPayload(t *testing.T) {
	h := NewVerifyHandler(utils.NewTokenIssuer("s", "i", time.Minute), zerolog.Nop())
	got := capture(h)

	h.handle(&nats.Msg{Data: []byte("{")})
	assert.Equal(t, "invalid_payload", got.Error)

	request(t, h, "")
	assert.Equal(t, "invalid_payload", got.Error)
}

func TestSubscribeNilConn(t *testing.T) {
	h := NewVerifyHandler(utils.NewTokenIssuer("s", "i", time.Minute), zerolog.Nop())
	_, err := h.Subscribe(nil, "auth.verify_token", "library-auth")
	assert.Error(t, err)
}

package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-auth/internal/model"
)

func testUser() model.User {
	branch := uint64(3)
	return model.User{ID: 42, Email: "staff1@school.local", Role: model.RoleStaff, BranchID: &branch}
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "library-auth", 15*time.Minute)

	tok, err := issuer.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 2*time.Second)

	claims, err := issuer.Verify(tok.Token)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "staff1@school.local", claims.Email)
	assert.Equal(t, model.RoleStaff, claims.Role)
	require.NotNil(t, claims.BranchID)
	assert.Equal(t, uint64(3), *claims.BranchID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestIssueWithoutBranch(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "library-auth", time.Minute)
	u := testUser()
	u.BranchID = nil

	tok, err := issuer.Issue(u)
	require.NoError(t, err)
	claims, err := issuer.Verify(tok.Token)
	require.NoError(t, err)
	assert.Nil(t, claims.BranchID)
}

func TestVerifyExpired(t *testing.T) {
	start := time.Now()
	issuer := NewTokenIssuer("access-secret", "library-auth", 15*time.Minute).WithClock(func() time.Time { return start })
	tok, err := issuer.Issue(testUser())
	require.NoError(t, err)

	issuer.WithClock(func() time.Time { return start.Add(16 * time.Minute) })
	_, err = issuer.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, err := NewTokenIssuer("other-secret", "library-auth", time.Minute).Issue(testUser())
	require.NoError(t, err)

	_, err = NewTokenIssuer("access-secret", "library-auth", time.Minute).Verify(tok.Token)
	assert.ErrorIs(t, err, ErrTokenWrongKey)
}

func TestVerifyWrongAlgorithm(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "42", "iss": "library-auth", "typ": "access",
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = NewTokenIssuer("access-secret", "library-auth", time.Minute).Verify(signed)
	assert.ErrorIs(t, err, ErrTokenWrongKey)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokenIssuer("access-secret", "library-auth", time.Minute).Verify(unsigned)
	assert.ErrorIs(t, err, ErrTokenWrongKey)
}

func TestVerifyMalformed(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "library-auth", time.Minute)

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed, raw)
	}
}

func TestVerifyRejectsNonAccessType(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "42", "iss": "library-auth", "typ": "refresh",
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = NewTokenIssuer("access-secret", "library-auth", time.Minute).Verify(signed)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRefreshTokensAreUniqueAndHashedWithKey(t *testing.T) {
	now := time.Now()
	a, err := NewRefreshToken(now, 720*time.Hour)
	require.NoError(t, err)
	b, err := NewRefreshToken(now, 720*time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Len(t, a.Raw, 43)
	assert.Equal(t, now.UTC().Add(720*time.Hour), a.Exp)

	h1 := NewRefreshHasher("refresh-secret")
	h2 := NewRefreshHasher("another-secret")
	assert.Equal(t, h1.Hash(a.Raw), h1.Hash(a.Raw))
	assert.NotEqual(t, h1.Hash(a.Raw), h2.Hash(a.Raw))
	assert.Len(t, h1.Hash(a.Raw), 64)
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("Staff123!", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "Staff123!"))
	assert.False(t, VerifyPassword(hash, "staff123!"))

	assert.True(t, PasswordLongEnough("Staff123!", 8))
	assert.False(t, PasswordLongEnough("short", 8))
}

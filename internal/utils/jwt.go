package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/library-auth/internal/model"
)

// Verification failures.  They all mean "unauthorized" to a client but are
// kept apart so logs and metrics can tell an expired session from a forgery.
var (
	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenMalformed = errors.New("access token malformed")
	ErrTokenWrongKey  = errors.New("access token signed with unexpected key or algorithm")
)

const accessTokenType = "access"

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims is the claim set carried by every access token.  Subject holds
// the user id in decimal.
type AccessClaims struct {
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	BranchID *uint64 `json:"branch_id"`
	Type     string  `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// TokenIssuer mints and verifies HS256 access tokens.  It holds no mutable
// state, so one instance is shared by every request goroutine.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests to age tokens.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// Issue builds and signs an access token for u.  It depends only on the
// user row and the clock.
func (i *TokenIssuer) Issue(u model.User) (AccessToken, error) {
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := AccessClaims{
		Email:    u.Email,
		Role:     u.Role,
		BranchID: u.BranchID,
		Type:     accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the
// claims.  Errors are always one of ErrTokenExpired, ErrTokenMalformed or
// ErrTokenWrongKey.
func (i *TokenIssuer) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrTokenWrongKey
	default:
		return nil, ErrTokenMalformed
	}
	if claims.Type != accessTokenType {
		return nil, ErrTokenMalformed
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// RefreshToken represents a long-lived opaque token used to obtain new
// access tokens.  Raw is returned to the client exactly once; storage only
// ever sees its hash.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// NewRefreshToken returns 32 bytes of crypto/rand output, base64url encoded,
// expiring ttl after now.
func NewRefreshToken(now time.Time, ttl time.Duration) (RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: base64.RawURLEncoding.EncodeToString(buf),
		Exp: now.UTC().Add(ttl),
	}, nil
}

// RefreshHasher derives the storage key of a refresh token.  It is keyed with
// a secret distinct from the access token secret.
type RefreshHasher struct{ key []byte }

func NewRefreshHasher(secret string) RefreshHasher { return RefreshHasher{key: []byte(secret)} }

// Hash returns hex(HMAC-SHA256(key, raw)).
func (h RefreshHasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

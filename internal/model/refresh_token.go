package model

import "time"

// TokenState is the lifecycle state of a refresh token record.  Active is
// the only state a token can leave; Rotated and Revoked are terminal.
type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenRotated TokenState = "rotated"
	TokenRevoked TokenState = "revoked"
)

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored, only its keyed hash, so a copy of the table is not
// enough to refresh anyone's session.
//
// Fields:
//
//	TokenHash – hex HMAC-SHA256 of the raw token (primary key).
//	UserID    – owner of the token.
//	FamilyID  – ULID shared by every token in one rotation lineage.
//	State     – active, rotated or revoked.
//	RotatedTo – hash of the successor once rotated.
//	CreatedAt – timestamp of creation.
//	ExpiresAt – absolute expiry.
//	RevokedAt – when the token was revoked (nil otherwise).
//	UserAgent – client user agent at issuance, audit only.
//	IP        – client address at issuance, audit only.
type RefreshToken struct {
	TokenHash string
	UserID    uint64
	FamilyID  string
	State     TokenState
	RotatedTo *string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IP        string
}

// Expired reports whether the token is past its absolute expiry at now.
func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

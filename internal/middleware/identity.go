package middleware

import (
	"github.com/labstack/echo/v4"
)

// IdentityKey is the echo context key JWTAuth stores the caller under.
const IdentityKey = "identity"

// Identity is the verified caller, taken from the access token claims.
// It reflects the user as of token issuance, not the current row.
type Identity struct {
	UserID   uint64
	Email    string
	Role     string
	BranchID *uint64
}

// IdentityFrom returns the identity stored by JWTAuth.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(IdentityKey).(Identity)
	return id, ok
}

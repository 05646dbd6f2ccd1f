package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/utils"
)

// AccessVerifier checks an access token and returns its claims.
type AccessVerifier interface {
	Verify(raw string) (*utils.AccessClaims, error)
}

// JWTAuth validates the Bearer access token and stores the caller's
// Identity in the context.  Every failure is a 401; the reason only shows
// up in the rejection counter.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, found := strings.Cut(authz, " ")
			raw = strings.TrimSpace(raw)
			if !found || !strings.EqualFold(scheme, "bearer") || raw == "" {
				return reject(c, "missing", "missing bearer token")
			}

			claims, err := v.Verify(raw)
			if err != nil {
				switch {
				case errors.Is(err, utils.ErrTokenExpired):
					return reject(c, "expired", "access token expired")
				case errors.Is(err, utils.ErrTokenWrongKey):
					return reject(c, "wrong_key", "invalid access token")
				default:
					return reject(c, "malformed", "invalid access token")
				}
			}
			uid, err := claims.UserID()
			if err != nil {
				return reject(c, "malformed", "invalid access token")
			}

			c.Set(IdentityKey, Identity{UserID: uid, Email: claims.Email, Role: claims.Role, BranchID: claims.BranchID})
			return next(c)
		}
	}
}

func reject(c echo.Context, reason, msg string) error {
	metrics.TokenRejected.WithLabelValues(reason).Inc()
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": msg})
}

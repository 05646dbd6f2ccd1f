package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/utils"
)

func newIssuer() *utils.TokenIssuer {
	return utils.NewTokenIssuer("access-secret", "library-auth", 15*time.Minute)
}

func serve(t *testing.T, mw []echo.MiddlewareFunc, authz string) (*httptest.ResponseRecorder, Identity) {
	t.Helper()
	e := echo.New()
	var seen Identity
	e.GET("/", func(c echo.Context) error {
		seen, _ = IdentityFrom(c)
		return c.String(http.StatusOK, "ok")
	}, mw...)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	issuer := newIssuer()
	branch := uint64(3)
	tok, err := issuer.Issue(model.User{ID: 42, Email: "a@school.local", Role: model.RoleStaff, BranchID: &branch})
	require.NoError(t, err)

	rec, id := serve(t, []echo.MiddlewareFunc{JWTAuth(issuer)}, "Bearer "+tok.Token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), id.UserID)
	assert.Equal(t, "a@school.local", id.Email)
	assert.Equal(t, model.RoleStaff, id.Role)
	require.NotNil(t, id.BranchID)
	assert.Equal(t, branch, *id.BranchID)
}

func TestJWTAuthRejects(t *testing.T) {
	issuer := newIssuer()
	other := utils.NewTokenIssuer("other-secret", "library-auth", 15*time.Minute)
	forged, err := other.Issue(model.User{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)
	stale := utils.NewTokenIssuer("access-secret", "library-auth", 15*time.Minute).
		WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, err := stale.Issue(model.User{ID: 1, Role: model.RoleStaff})
	require.NoError(t, err)

	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic abc",
		"empty bearer":  "Bearer ",
		"garbage":       "Bearer not.a.jwt",
		"wrong key":     "Bearer " + forged.Token,
		"expired token": "Bearer " + expired.Token,
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := serve(t, []echo.MiddlewareFunc{JWTAuth(issuer)}, authz)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	issuer := newIssuer()
	staff, err := issuer.Issue(model.User{ID: 2, Role: model.RoleStaff})
	require.NoError(t, err)
	admin, err := issuer.Issue(model.User{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)
	chain := []echo.MiddlewareFunc{JWTAuth(issuer), RequireRole(model.RoleAdmin)}

	rec, _ := serve(t, chain, "Bearer "+staff.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, chain, "Bearer "+admin.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{RequireRole(model.RoleAdmin)}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestLoggerOmitsAuthorization(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	issuer := newIssuer()
	tok, err := issuer.Issue(model.User{ID: 9, Role: model.RoleStaff})
	require.NoError(t, err)

	rec, _ := serve(t, []echo.MiddlewareFunc{RequestLogger(log), JWTAuth(issuer)}, "Bearer "+tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["message"])
	assert.Equal(t, float64(200), line["status"])
	assert.Equal(t, float64(9), line["user_id"])
	assert.NotContains(t, buf.String(), tok.Token)
}

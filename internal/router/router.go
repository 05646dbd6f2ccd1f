package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-auth/internal/handler"
	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/middleware"
	"github.com/iliyamo/library-auth/internal/model"
)

// RegisterRoutes registers the probes and the metrics endpoint.  None of
// them require authentication.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.ReadyCheck) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the session endpoints under /auth.  register,
// login, refresh and logout are public; the profile endpoints need a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, p *handler.ProfileHandler, verifier middleware.AccessVerifier) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout takes only the refresh token so it works after the access
	// token has expired
	g.POST("/logout", a.Logout)

	guard := middleware.JWTAuth(verifier)
	g.GET("/profile", p.Me, guard)
	g.PUT("/profile", p.UpdateMe, guard)
	g.PATCH("/theme", p.UpdateTheme, guard)
}

// RegisterAdmin registers account administration under /admin.  Every
// route requires the admin role.
func RegisterAdmin(e *echo.Echo, p *handler.ProfileHandler, verifier middleware.AccessVerifier) {
	g := e.Group(
		"/admin",
		middleware.JWTAuth(verifier),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/users/:id", p.GetUser)
	g.PUT("/users/:id/profile", p.UpdateUserProfile)
	g.PATCH("/users/:id/active", p.SetActive)
	g.PUT("/users/:id/access", p.UpdateAccess)
}

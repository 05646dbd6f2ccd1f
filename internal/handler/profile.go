package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/middleware"
	"github.com/iliyamo/library-auth/internal/service"
)

// ProfileHandler serves the authenticated profile endpoints, both for the
// caller's own account and for administrative edits of other accounts.
type ProfileHandler struct {
	Sessions *service.SessionManager
	Log      zerolog.Logger
}

func NewProfileHandler(s *service.SessionManager, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{Sessions: s, Log: log}
}

type profileReq struct {
	DisplayName *string `json:"display_name"`
}
type themeReq struct {
	Theme string `json:"theme"`
}
type activeReq struct {
	IsActive *bool `json:"is_active"`
}
type accessReq struct {
	Role     string  `json:"role"`
	BranchID *uint64 `json:"branch_id"`
}

// actor reads the identity JWTAuth attached to the request.
func actor(c echo.Context) (service.Actor, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{UserID: id.UserID, Role: id.Role}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing identity"})
}

// pathUserID parses the :id parameter of the admin routes.
func pathUserID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func badUserID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorBody{
		Error:   "validation_error",
		Message: "invalid input",
		Fields:  map[string]string{"id": "must be a positive integer"},
	})
}

// Me returns the caller's own user record.
func (h *ProfileHandler) Me(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.show(c, a, a.UserID)
}

// UpdateMe sets or clears the caller's display name.
func (h *ProfileHandler) UpdateMe(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.updateProfile(c, a, a.UserID)
}

// UpdateTheme stores the caller's theme preference.
func (h *ProfileHandler) UpdateTheme(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req themeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.UpdateTheme(ctx, a, a.UserID, req.Theme)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

// GetUser returns any user record (admin).
func (h *ProfileHandler) GetUser(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathUserID(c)
	if !ok {
		return badUserID(c)
	}
	return h.show(c, a, id)
}

// UpdateUserProfile edits another user's display name (admin).
func (h *ProfileHandler) UpdateUserProfile(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathUserID(c)
	if !ok {
		return badUserID(c)
	}
	return h.updateProfile(c, a, id)
}

// SetActive activates or deactivates an account (admin).  Deactivation
// revokes every refresh token of the account.
func (h *ProfileHandler) SetActive(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathUserID(c)
	if !ok {
		return badUserID(c)
	}
	var req activeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.IsActive == nil {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:   "validation_error",
			Message: "invalid input",
			Fields:  map[string]string{"is_active": "required"},
		})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.SetActive(ctx, a, id, *req.IsActive)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

// UpdateAccess changes role and branch scope (admin).
func (h *ProfileHandler) UpdateAccess(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathUserID(c)
	if !ok {
		return badUserID(c)
	}
	var req accessReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.UpdateAccess(ctx, a, id, req.Role, req.BranchID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

func (h *ProfileHandler) show(c echo.Context, a service.Actor, id uint64) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.Profile(ctx, a, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

func (h *ProfileHandler) updateProfile(c echo.Context, a service.Actor, id uint64) error {
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.UpdateProfile(ctx, a, id, req.DisplayName)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/service"
)

const requestTimeout = 5 * time.Second

// AuthHandler serves the public session endpoints.
type AuthHandler struct {
	Sessions *service.SessionManager
	Log      zerolog.Logger
}

func NewAuthHandler(s *service.SessionManager, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Sessions: s, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResp struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
type sessionResp struct {
	User model.User `json:"user"`
	tokenResp
}
type userResp struct {
	User model.User `json:"user"`
}

func tokensOf(s service.Session) tokenResp {
	return tokenResp{
		AccessToken:      s.Access.Token,
		RefreshToken:     s.Refresh.Token,
		AccessExpiresAt:  s.Access.Exp,
		RefreshExpiresAt: s.Refresh.ExpiresAt,
	}
}

func clientMeta(c echo.Context) service.ClientMeta {
	return service.ClientMeta{UserAgent: c.Request().UserAgent(), IP: c.RealIP()}
}

// Register: create a staff account and return a session immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Register(ctx, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, clientMeta(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, sessionResp{User: sess.User, tokenResp: tokensOf(sess)})
}

// Login: verify credentials and start a new session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Login(ctx, req.Email, req.Password, clientMeta(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sessionResp{User: sess.User, tokenResp: tokensOf(sess)})
}

// Refresh: rotate the refresh token and mint a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:   "validation_error",
			Message: "invalid input",
			Fields:  map[string]string{"refresh_token": "required"},
		})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Refresh(ctx, req.RefreshToken, clientMeta(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tokensOf(sess))
}

// Logout: revoke the presented refresh token.  Any well-formed body
// succeeds, whatever state the token was in.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Sessions.Logout(ctx, req.RefreshToken, clientMeta(c)); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/service"
)

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// respondError maps service errors to HTTP responses.  Anything it does not
// recognise is logged and reported as 500 without detail.
func respondError(c echo.Context, log zerolog.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrWeakPassword) && errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "weak_password", Message: "password does not meet policy", Fields: verr.Fields})
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_error", Message: "invalid input", Fields: verr.Fields})
	case errors.Is(err, service.ErrSessionNotOpened):
		log.Error().Err(err).Str("path", c.Path()).Msg("session not opened")
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "session_unavailable", Message: "account created, log in to start a session"})
	case errors.Is(err, service.ErrDuplicateEmail):
		return c.JSON(http.StatusConflict, errorBody{Error: "email_taken", Message: "email already registered"})
	case errors.Is(err, service.ErrBadCredentials):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_credentials", Message: "invalid email or password"})
	case errors.Is(err, service.ErrAccountInactive):
		return c.JSON(http.StatusForbidden, errorBody{Error: "account_inactive", Message: "account is deactivated"})
	case errors.Is(err, service.ErrTokenExpired):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "refresh_token_expired", Message: "refresh token expired, log in again"})
	case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrReplayDetected):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_refresh_token", Message: "refresh token is not valid, log in again"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody{Error: "forbidden", Message: "not allowed"})
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "user not found"})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal server error"})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "request body is not valid JSON"})
}

package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/pkg/cookies"
	"github.com/pawboard/pawboard/pkg/logging"
)

// The refresh cookie is scoped to /auth so it only travels with the
// refresh and logout calls.
const refreshCookiePath = "/auth"

type AuthHTTP struct {
	Svc *service.TokenService
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
		case errors.Is(err, service.ErrEmailTaken):
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		default:
			l.Error("register_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "register failed")
		}
	}

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, user, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserBlocked):
			return c.JSON(http.StatusForbidden, echo.Map{"code": "USER_BLOCKED"})
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrValidation):
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_CREDENTIALS"})
		default:
			l.Error("login_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
		}
	}

	c.SetCookie(cookies.Create("refreshToken", pair.RefreshToken, refreshCookiePath, pair.RefreshExp))
	l.Info("login_successful")

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": pair.AccessToken,
		"user":         user,
	})
}

// Refresh rotates the credential from the HTTP-only cookie. Any failure
// clears the cookie; a consumed or unknown credential can never succeed on
// a later attempt, so there is nothing to keep.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie("refreshToken")
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "NO_REFRESH_TOKEN"})
	}

	pair, user, err := h.Svc.Rotate(ctx, cookie.Value)
	if err != nil {
		c.SetCookie(cookies.Delete("refreshToken", refreshCookiePath))
		switch {
		case errors.Is(err, service.ErrInvalidRefreshToken):
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_REFRESH_TOKEN"})
		case errors.Is(err, service.ErrUserNotFound):
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "USER_NOT_FOUND"})
		case errors.Is(err, service.ErrUserBlocked):
			return c.JSON(http.StatusForbidden, echo.Map{"code": "USER_BLOCKED"})
		default:
			l.Error("refresh_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
		}
	}

	c.SetCookie(cookies.Create("refreshToken", pair.RefreshToken, refreshCookiePath, pair.RefreshExp))

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": pair.AccessToken,
		"user":         user,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if cookie, err := c.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		if err := h.Svc.Revoke(ctx, cookie.Value); err != nil {
			l.Error("logout_revoke_failed", "error", err)
		}
	}
	c.SetCookie(cookies.Delete("refreshToken", refreshCookiePath))

	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

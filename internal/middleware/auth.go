package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/pkg/tokens"
)

type Auth struct {
	Tokens *service.TokenService
	Repo   repo.GormRepo
}

func NewAuth(tokenSvc *service.TokenService, r repo.GormRepo) *Auth {
	return &Auth{Tokens: tokenSvc, Repo: r}
}

func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *Auth) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(user *models.User) error {
		if user.Role != models.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

// requireAuthWithValidator checks the bearer token and then the live user
// record, so a block takes effect on the next REST call even though the
// access token itself stays valid until expiry.
func (m *Auth) requireAuthWithValidator(next echo.HandlerFunc, validator func(*models.User) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c)
		if err != nil {
			return err
		}

		claims, err := m.Tokens.VerifyAccess(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		user, err := m.liveUser(c, claims)
		if err != nil {
			return err
		}
		if validator != nil {
			if vErr := validator(user); vErr != nil {
				return vErr
			}
		}

		c.Set("user_id", user.ID.String())
		c.Set("role", user.Role)
		return next(c)
	}
}

func (m *Auth) liveUser(c echo.Context, claims *tokens.AccessClaims) (*models.User, error) {
	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	user, err := m.Repo.UserByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "user not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "cannot load user")
	}
	if user.Blocked {
		return nil, echo.NewHTTPError(http.StatusForbidden, "user blocked")
	}
	return user, nil
}

func bearerToken(c echo.Context) (string, error) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if auth == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}

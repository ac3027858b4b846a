package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nkarpova/market_auth/internal/middleware"
	"github.com/nkarpova/market_auth/internal/repo"
	"github.com/nkarpova/market_auth/internal/service"
	"github.com/nkarpova/market_auth/pkg/logging"
)

type AuthHTTP struct {
	Svc *service.SessionService
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  res.AccessToken,
		"refresh_token": res.RefreshToken,
		"user":          res.Account,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.RefreshToken == "" {
		return middleware.ErrMissingToken
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": res.AccessToken,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.ErrMissingToken
	}

	if err := h.Svc.Logout(ctx, id.AccountID); err != nil {
		l.Error("logout_failed", "account_id", id.AccountID, "error", err)
		return err
	}

	l.Info("logout_successful", "account_id", id.AccountID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

// Profile returns the live account of the authenticated caller.
func (h *AuthHTTP) Profile(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.ErrMissingToken
	}

	acc, err := h.Svc.Repo.FindByID(ctx, id.AccountID)
	if err != nil {
		// The account was just validated; if it vanished since, the session
		// is gone rather than the resource.
		if errors.Is(err, repo.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user": acc,
	})
}

// Validate exists for collaborating services: a cheap way to turn a bearer
// token into an identity.
func (h *AuthHTTP) Validate(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.ErrMissingToken
	}

	return c.JSON(http.StatusOK, echo.Map{
		"identity": echo.Map{
			"id":         id.AccountID,
			"username":   id.Username,
			"role":       id.Role,
			"profile_id": id.ProfileID,
		},
	})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.ErrMissingToken
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ChangePassword(ctx, id.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	l.Info("password_changed", "account_id", id.AccountID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "password changed",
	})
}

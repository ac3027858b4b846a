package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nkarpova/market_auth/internal/service"
	"github.com/nkarpova/market_auth/pkg/logging"
)

// AccountsHTTP carries the administrative session operations and the
// self-or-admin account view. Authorization lives in the route gates, not
// here.
type AccountsHTTP struct {
	Svc *service.SessionService
}

func (h *AccountsHTTP) Get(c echo.Context) error {
	acc, err := h.Svc.Repo.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user": acc,
	})
}

func (h *AccountsHTTP) ForceLogout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "accounts_force_logout")

	id := c.Param("id")
	if _, err := h.Svc.Repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := h.Svc.ForceLogout(ctx, id); err != nil {
		return err
	}

	l.Info("force_logout_successful", "account_id", id)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func (h *AccountsHTTP) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "accounts_reset_password")

	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("reset_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	id := c.Param("id")
	if err := h.Svc.ResetPassword(ctx, id, req.NewPassword); err != nil {
		return err
	}

	l.Info("password_reset", "account_id", id)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "password reset",
	})
}

func (h *AccountsHTTP) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "accounts_deactivate")

	id := c.Param("id")
	if err := h.Svc.Deactivate(ctx, id); err != nil {
		return err
	}

	l.Info("account_deactivated", "account_id", id)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "account deactivated",
	})
}

func (h *AccountsHTTP) Activate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "accounts_activate")

	id := c.Param("id")
	if err := h.Svc.Activate(ctx, id); err != nil {
		return err
	}

	l.Info("account_activated", "account_id", id)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "account activated",
	})
}

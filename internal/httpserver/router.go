package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nkarpova/market_auth/internal/middleware"
	"github.com/nkarpova/market_auth/internal/models"
)

type Deps struct {
	Auth     *AuthHTTP
	Accounts *AccountsHTTP
	MW       *middleware.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := e.Group("/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)

	private := auth.Group("")
	private.Use(d.MW.Authenticate)
	private.POST("/logout", d.Auth.Logout)
	private.GET("/profile", d.Auth.Profile)
	private.GET("/validate", d.Auth.Validate)
	private.PATCH("/change-password", d.Auth.ChangePassword)

	accounts := e.Group("/accounts")
	accounts.Use(d.MW.Authenticate)
	accounts.GET("/:id", d.Accounts.Get, d.MW.RequireOwnershipOrRole())

	admin := accounts.Group("", d.MW.RequireRole(models.RoleAdmin))
	admin.POST("/:id/force-logout", d.Accounts.ForceLogout)
	admin.POST("/:id/reset-password", d.Accounts.ResetPassword)
	admin.POST("/:id/deactivate", d.Accounts.Deactivate)
	admin.POST("/:id/activate", d.Accounts.Activate)
}

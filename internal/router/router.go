// Package router assembles the echo instance and registers every route.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/glukogo/authsvc/internal/handler"
	"github.com/glukogo/authsvc/internal/middleware"
)

// Deps is everything the routes need.
type Deps struct {
	Log     *slog.Logger
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Admin   *handler.AdminHandler
	Tokens  middleware.TokenVerifier
	Lookup  middleware.UserLookup
	Checks  map[string]handler.Check
	Avatars StaticDir // optional; set when avatars are stored on local disk
}

// StaticDir serves files from Dir under Prefix.
type StaticDir struct {
	Prefix string
	Dir    string
}

// New returns a configured echo instance.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	Register(e, d)
	return e
}

// Register mounts the routes on e.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.Checks))
	if d.Avatars.Dir != "" && d.Avatars.Prefix != "" {
		e.Static(d.Avatars.Prefix, d.Avatars.Dir)
	}

	a := e.Group("/auth")
	a.POST("/check-email", d.Auth.CheckEmail)
	a.POST("/send-verification", d.Auth.SendVerification)
	a.POST("/register", d.Auth.Register)
	a.POST("/login", d.Auth.Login)
	a.POST("/vk-callback", d.Auth.VKCallback)
	a.GET("/vk-user", d.Auth.VKUser)
	a.GET("/callback", d.Auth.OAuthCallback)

	authn := middleware.Authenticate(d.Tokens, d.Lookup)

	u := e.Group("/users", authn)
	u.GET("/me", d.Users.Me)
	u.DELETE("/me", d.Users.DeleteMe)
	u.GET("/:id", d.Users.Get, middleware.RequireOwnerOrAdmin("id"))
	u.PATCH("/:id", d.Users.Update, middleware.RequireOwnerOrAdmin("id"))

	adm := e.Group("/admin", authn, middleware.RequireAdmin())
	adm.GET("/users", d.Admin.ListUsers)
	adm.PATCH("/users/:id/role", d.Admin.SetRole)
}

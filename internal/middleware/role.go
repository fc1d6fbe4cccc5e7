package middleware // role and ownership guards; both expect Authenticate to run first

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/model"
)

// RequireAdmin lets through only callers whose stored role is admin.  It
// must run after Authenticate.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// No identity means Authenticate did not run or rejected the
			// request; treat it as unauthenticated.
			id, ok := CurrentIdentity(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "unauthenticated", "Требуется авторизация")
			}
			// The role was read from the store by Authenticate.
			if id.Role != model.RoleAdmin {
				return deny(c, http.StatusForbidden, "forbidden", "Доступ запрещён")
			}
			return next(c)
		}
	}
}

// RequireOwnerOrAdmin lets through admins and callers whose id or email
// equals the path parameter param.  "me" always refers to the caller.
func RequireOwnerOrAdmin(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "unauthenticated", "Требуется авторизация")
			}
			// The path parameter may hold an id, an email or "me".
			owner := strings.TrimSpace(c.Param(param))
			switch {
			case id.Role == model.RoleAdmin:
				// admins may act on any account
			case owner == "me", owner != "" && owner == id.UserID:
				// the caller's own id
			case owner != "" && strings.EqualFold(owner, id.Email):
				// the caller's own email; stored emails are lower-case
			default:
				return deny(c, http.StatusForbidden, "forbidden", "Доступ запрещён")
			}
			return next(c)
		}
	}
}

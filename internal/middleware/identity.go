package middleware // identity carried in the echo context between middleware and handlers

import (
	"github.com/labstack/echo/v4"
)

// IdentityKey is the echo context key Authenticate stores the caller under.
const IdentityKey = "identity"

// Identity is the authenticated caller as read from the store on this
// request.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// CurrentIdentity returns the identity set by Authenticate.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	id, ok := c.Get(IdentityKey).(Identity)
	return id, ok
}

// userID is used for request logging; unauthenticated requests log "guest".
func userID(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return id.UserID
	}
	return "guest"
}

// deny writes the same {error, code} body the handlers use.
func deny(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/middleware"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/service"
)

// UserHandler serves the account endpoints behind Authenticate.
type UserHandler struct {
	Auth *service.AuthService
}

func NewUserHandler(auth *service.AuthService) *UserHandler { return &UserHandler{Auth: auth} }

type updateUserReq struct {
	Name string `json:"name"`
}

// target resolves the :id path parameter; "me" is the caller.
func target(c echo.Context) string {
	id := c.Param("id")
	if id == "" || id == "me" {
		if ident, ok := middleware.CurrentIdentity(c); ok {
			return ident.UserID
		}
	}
	return id
}

// Me: GET /users/me
func (h *UserHandler) Me(c echo.Context) error {
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	// Authenticate guarantees an identity on this route.
	ident, _ := middleware.CurrentIdentity(c)
	u, err := h.Auth.GetUser(ctx, ident.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u.Public())
}

// DeleteMe: DELETE /users/me
func (h *UserHandler) DeleteMe(c echo.Context) error {
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	ident, _ := middleware.CurrentIdentity(c)
	if err := h.Auth.DeleteUser(ctx, ident.UserID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Аккаунт удалён"})
}

// Get: GET /users/:id, where :id is an id, an email or "me".
func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	u, err := h.Auth.FindUser(ctx, target(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u.Public())
}

// Update: PATCH /users/:id
func (h *UserHandler) Update(c echo.Context) error {
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	// Resolve id, email or "me" to the stored record first.
	u, err := h.Auth.FindUser(ctx, target(c))
	if err != nil {
		return fail(c, err)
	}
	// Only the display name is editable here.
	if u, err = h.Auth.UpdateName(ctx, u.ID, req.Name); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u.Public())
}

func publicList(users []model.User) []model.Profile {
	out := make([]model.Profile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out
}

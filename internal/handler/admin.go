package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/service"
)

// AdminHandler serves /admin, mounted behind RequireAdmin.
type AdminHandler struct {
	Auth *service.AuthService
}

func NewAdminHandler(auth *service.AuthService) *AdminHandler { return &AdminHandler{Auth: auth} }

type roleReq struct {
	Role string `json:"role"`
}

// ListUsers: GET /admin/users?limit=&offset=
func (h *AdminHandler) ListUsers(c echo.Context) error {
	// Bad or missing paging parameters fall back to the defaults.
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	users, err := h.Auth.ListUsers(ctx, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	// Echo the paging the service applied.
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return c.JSON(http.StatusOK, echo.Map{"users": publicList(users), "limit": limit, "offset": offset})
}

// SetRole: PATCH /admin/users/:id/role
func (h *AdminHandler) SetRole(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	// The new role applies on the target's next request.
	u, err := h.Auth.SetRole(ctx, c.Param("id"), req.Role)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u.Public())
}

package handler // HTTP handlers for authentication, accounts and administration

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/service"
)

const (
	requestTimeout = 5 * time.Second
	// OAuth requests chain a token exchange, a profile read and an avatar
	// download, each bounded separately.
	oauthTimeout = 35 * time.Second
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	Auth                *service.AuthService
	DistinctLoginErrors bool
	Delivery            OAuthDelivery
}

func NewAuthHandler(auth *service.AuthService, distinctLoginErrors bool, delivery OAuthDelivery) *AuthHandler {
	return &AuthHandler{Auth: auth, DistinctLoginErrors: distinctLoginErrors, Delivery: delivery}
}

// ----- DTOs -----

type emailReq struct {
	Email string `json:"email"`
}

type registerReq struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
	Name             string `json:"name"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type vkCallbackReq struct {
	AccessToken string             `json:"accessToken"`
	UserData    service.VKUserData `json:"userData"`
	Action      string             `json:"action"`
}

type registerResp struct {
	Token         string `json:"token"`
	UserID        string `json:"userId"`
	IsPioneer     bool   `json:"isPioneer"`
	PioneerNumber int64  `json:"pioneerNumber"`
}

type loginResp struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type sessionResp struct {
	Token     string        `json:"token"`
	User      model.Profile `json:"user"`
	IsNewUser bool          `json:"isNewUser"`
}

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// CheckEmail: POST /auth/check-email
func (h *AuthHandler) CheckEmail(c echo.Context) error {
	// Decode the JSON body; malformed input is a 400.
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	// Bound the store lookup.
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	exists, err := h.Auth.CheckEmail(ctx, req.Email)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}

// SendVerification: POST /auth/send-verification
func (h *AuthHandler) SendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	// Mail delivery may go through an external API, so it gets longer.
	ctx, cancel := withTimeout(c, 15*time.Second)
	defer cancel()

	if err := h.Auth.SendVerification(ctx, req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Код подтверждения отправлен"})
}

// Register: POST /auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	// The service runs policy, code, uniqueness and persistence in order
	// and stops at the first failure.
	res, err := h.Auth.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.VerificationCode,
		Name:     req.Name,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, registerResp{
		Token:         res.Token,
		UserID:        res.UserID,
		IsPioneer:     res.IsPioneer,
		PioneerNumber: res.PioneerNumber,
	})
}

// Login: POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		// Unknown email and wrong password look the same to the client
		// unless distinct errors are configured.
		if !h.DistinctLoginErrors &&
			(errors.Is(err, service.ErrNoSuchUser) || errors.Is(err, service.ErrInvalidCredentials)) {
			return failCode(c, codeAuthenticationFailed)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{Token: res.Token, UserID: res.UserID})
}

// VKCallback: POST /auth/vk-callback
func (h *AuthHandler) VKCallback(c echo.Context) error {
	var req vkCallbackReq
	if err := c.Bind(&req); err != nil {
		return failCode(c, "invalid_body")
	}
	ctx, cancel := withTimeout(c, oauthTimeout)
	defer cancel()

	// The access token is re-checked with VK by the service.
	res, err := h.Auth.VKCallback(ctx, service.VKCallbackInput{
		AccessToken: req.AccessToken,
		UserData:    req.UserData,
		Action:      req.Action,
	})
	if err != nil {
		return failProvider(c, model.ProviderVK, err)
	}
	// Only the public profile leaves the service.
	return c.JSON(http.StatusOK, sessionResp{Token: res.Token, User: res.User.Public(), IsNewUser: res.IsNewUser})
}

// VKUser: GET /auth/vk-user?accessToken=&userId=
func (h *AuthHandler) VKUser(c echo.Context) error {
	ctx, cancel := withTimeout(c, oauthTimeout)
	defer cancel()

	u, err := h.Auth.VKUser(ctx, c.QueryParam("accessToken"), c.QueryParam("userId"))
	if err != nil {
		return failProvider(c, model.ProviderVK, err)
	}
	return c.JSON(http.StatusOK, u)
}

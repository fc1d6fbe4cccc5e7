package middleware // reusable echo middleware: authentication, authorization and request logging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/logging"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/repository"
)

// TokenVerifier checks a session token and returns its user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserLookup reads the current state of an account.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticate resolves the bearer token into an Identity.  A missing token
// is 401; any verification failure is 403 invalid_token; a token whose user
// no longer exists is 403 user_not_found.  The role always comes from the
// store, never from the token.
func Authenticate(tokens TokenVerifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A request without a usable "Bearer <token>" header never
			// reaches the token parser.
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return deny(c, http.StatusUnauthorized, "unauthenticated", "Требуется авторизация")
			}
			// Signature, algorithm and expiry are all checked by the issuer;
			// every failure is reported the same way.
			uid, err := tokens.Verify(raw)
			if err != nil {
				return deny(c, http.StatusForbidden, "invalid_token", "Недействительный токен")
			}

			// Re-read the account so role changes and deletions apply to
			// tokens that were issued earlier.
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, uid)
			if errors.Is(err, repository.ErrNotFound) {
				return deny(c, http.StatusForbidden, "user_not_found", "Пользователь не найден")
			}
			// Store failures are not the caller's fault.
			if err != nil {
				logging.FromContext(ctx).Error("identity lookup failed", slog.String("user_id", uid), logging.Err(err))
				return deny(c, http.StatusInternalServerError, "internal", "Внутренняя ошибка сервера")
			}

			// Handlers and the role guards read the identity from here.
			c.Set(IdentityKey, Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
			return next(c)
		}
	}
}

// bearer extracts the token from an Authorization header.  The scheme is
// matched case-insensitively.
func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

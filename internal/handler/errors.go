package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/logging"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/service"
)

// codeAuthenticationFailed replaces no_such_user and invalid_credentials on
// login unless distinct login errors are enabled.
const codeAuthenticationFailed = "authentication_failed"

type errorView struct {
	status int
	msg    string // %s, when present, takes the provider display name
}

var errorViews = map[string]errorView{
	"missing_fields":          {http.StatusBadRequest, "Заполните все обязательные поля"},
	"invalid_body":            {http.StatusBadRequest, "Некорректный запрос"},
	"invalid_email":           {http.StatusBadRequest, "Некорректный email"},
	"weak_password":           {http.StatusBadRequest, "Пароль должен содержать от 6 до 128 символов и хотя бы одну латинскую букву"},
	"email_taken":             {http.StatusBadRequest, "Пользователь с таким email уже существует"},
	"invalid_role":            {http.StatusBadRequest, "Недопустимая роль"},
	"invalid_name":            {http.StatusBadRequest, "Имя должно содержать от 1 до 64 символов"},
	"invalid_state":           {http.StatusBadRequest, "Неизвестный провайдер авторизации"},
	"invalid_or_expired_code": {http.StatusBadRequest, "Неверный или истекший код подтверждения"},
	"no_such_user":            {http.StatusBadRequest, "Пользователь с таким email не найден"},
	"invalid_credentials":     {http.StatusBadRequest, "Неверный пароль"},
	codeAuthenticationFailed:  {http.StatusBadRequest, "Неверный email или пароль"},
	"oauth_exchange_failed":   {http.StatusInternalServerError, "Не удалось выполнить вход через %s"},
	"oauth_profile_failed":    {http.StatusInternalServerError, "Не удалось получить профиль %s"},
	"oauth_not_configured":    {http.StatusInternalServerError, "Вход через %s не настроен"},
	"send_failed":             {http.StatusInternalServerError, "Не удалось отправить код подтверждения"},
	"user_not_found":          {http.StatusNotFound, "Пользователь не найден"},
	"internal":                {http.StatusInternalServerError, "Внутренняя ошибка сервера"},
}

var providerNames = map[string]string{
	model.ProviderVK:     "VK",
	model.ProviderYandex: "Яндекс",
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// describe maps code to a status and display message.
func describe(code, provider string) (int, errorBody) {
	v, ok := errorViews[code]
	if !ok {
		code, v = "internal", errorViews["internal"]
	}
	msg := v.msg
	if strings.Contains(msg, "%s") {
		name := providerNames[provider]
		if name == "" {
			name = "провайдера"
		}
		msg = fmt.Sprintf(v.msg, name)
	}
	return v.status, errorBody{Error: msg, Code: code}
}

// fail writes the response for a service error.  Unknown errors are logged
// and reported as internal.
func fail(c echo.Context, err error) error {
	return failProvider(c, "", err)
}

func failProvider(c echo.Context, provider string, err error) error {
	code := failLog(c, provider, err)
	status, body := describe(code, provider)
	return c.JSON(status, body)
}

// failLog logs failures worth an operator's attention and returns the code.
func failLog(c echo.Context, provider string, err error) string {
	code := service.Code(err)
	log := logging.FromContext(c.Request().Context())
	switch {
	case code == "internal":
		log.Error("request failed", logging.Err(err))
	case errors.Is(err, service.ErrUpstream), errors.Is(err, service.ErrConfiguration):
		log.Warn("upstream failure", slog.String("code", code), slog.String("provider", provider), logging.Err(err))
	}
	return code
}

// failCode writes a handler-level validation failure.
func failCode(c echo.Context, code string) error {
	status, body := describe(code, "")
	return c.JSON(status, body)
}

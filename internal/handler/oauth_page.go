package handler

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/glukogo/authsvc/internal/oauth"
	"github.com/glukogo/authsvc/internal/service"
)

// OAuthDelivery decides how the OAuth callback hands the session back.
// Popups post a message to their opener; mobile in-app browsers cannot, so
// they are redirected to AppHomeURL with the token in the query.
type OAuthDelivery struct {
	AppHomeURL string
	AppOrigin  string
}

var popupTmpl = template.Must(template.New("oauth").Parse(`<!doctype html>
<html lang="ru">
<head><meta charset="utf-8"><title>Глюкоза</title></head>
<body>
<p>{{if .Failed}}Не удалось войти. Окно можно закрыть.{{else}}Вход выполнен, окно закроется автоматически.{{end}}</p>
<script>
(function () {
  var payload = {{.Payload}};
  if (window.opener) {
    window.opener.postMessage(payload, {{.Origin}});
  }
  window.close();
})();
</script>
</body>
</html>`))

type popupData struct {
	Payload any
	Origin  string
	Failed  bool
}

// OAuthCallback: GET /auth/callback?code=&state=
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	// Both parameters come from the provider redirect.
	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code == "" || state == "" {
		return failCode(c, "missing_fields")
	}
	// The state selects the provider; an unknown one is rejected before
	// any exchange happens.
	provider, err := oauth.ProviderFromState(state)
	if err != nil {
		return failCode(c, "invalid_state")
	}
	mobile := isMobile(c.Request().UserAgent())

	ctx, cancel := withTimeout(c, oauthTimeout)
	defer cancel()

	res, err := h.Auth.OAuthLogin(ctx, provider, code)
	if err != nil {
		status, body := describe(service.Code(err), provider)
		_ = failLog(c, provider, err)
		// Mobile browsers get the code in the redirect, popups get it
		// through postMessage.
		if mobile {
			return c.Redirect(http.StatusFound, h.Delivery.homeURL(url.Values{"error": {body.Code}}))
		}
		return h.popup(c, status, popupData{
			Payload: map[string]any{"type": "oauth-error", "provider": provider, "error": body.Error, "code": body.Code},
			Failed:  true,
		})
	}

	if mobile {
		return c.Redirect(http.StatusFound, h.Delivery.homeURL(url.Values{"token": {res.Token}}))
	}
	return h.popup(c, http.StatusOK, popupData{
		Payload: map[string]any{
			"type":      "oauth-success",
			"provider":  provider,
			"token":     res.Token,
			"user":      res.User.Public(),
			"isNewUser": res.IsNewUser,
		},
	})
}

func (h *AuthHandler) popup(c echo.Context, status int, data popupData) error {
	// postMessage only delivers to the configured origin.
	data.Origin = h.Delivery.AppOrigin
	if data.Origin == "" {
		data.Origin = "/"
	}
	var buf bytes.Buffer
	if err := popupTmpl.Execute(&buf, data); err != nil {
		return fail(c, err)
	}
	return c.HTMLBlob(status, buf.Bytes())
}

// homeURL appends params to AppHomeURL, keeping any query it already has.
func (d OAuthDelivery) homeURL(params url.Values) string {
	u, err := url.Parse(d.AppHomeURL)
	if err != nil || d.AppHomeURL == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var (
	tabletKeywords = []string{"ipad", "tablet", "kindle", "silk"}
	mobileKeywords = []string{"mobile", "iphone", "android", "windows phone", "iemobile", "blackberry", "opera mini"}
)

// isMobile reports phones and tablets.  Android tablets drop "mobile" from
// the UA but still contain "android".
func isMobile(ua string) bool {
	ua = strings.ToLower(ua)
	if ua == "" {
		return false
	}
	for _, k := range tabletKeywords {
		if strings.Contains(ua, k) {
			return true
		}
	}
	for _, k := range mobileKeywords {
		if strings.Contains(ua, k) {
			return true
		}
	}
	return false
}

package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glukogo/authsvc/internal/model"
)

func staticSecret(s string) func() (string, error) {
	return func() (string, error) { return s, nil }
}

type fakeProvider struct {
	srv        *httptest.Server
	tokenBody  string
	tokenCode  int
	apiBody    string
	apiCalls   atomic.Int32
	tokenForm  url.Values
	authHeader string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{tokenCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenCode)
		_, _ = io.WriteString(w, f.tokenBody)
	})
	api := func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		f.authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.apiBody)
	}
	mux.HandleFunc("/method/users.get", api)
	mux.HandleFunc("/info", api)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) vk() *VK {
	return NewVK(Config{ClientID: "vk-app", Secret: staticSecret("vk-secret"), RedirectURI: "https://glukoza.app/auth/callback"},
		Endpoints{TokenURL: f.srv.URL + "/token", APIURL: f.srv.URL + "/method"})
}

func (f *fakeProvider) yandex() *Yandex {
	return NewYandex(Config{ClientID: "ya-app", Secret: staticSecret("ya-secret")},
		Endpoints{TokenURL: f.srv.URL + "/token", APIURL: f.srv.URL + "/info"})
}

func TestVK_Exchange(t *testing.T) {
	f := newFakeProvider(t)
	f.tokenBody = `{"access_token":"at-1","expires_in":86400,"user_id":42,"email":"Ivan@Mail.ru"}`
	f.apiBody = `{"response":[{"id":42,"first_name":"Иван","last_name":"Петров","photo_200":"https://vk.test/p.jpg"}]}`

	p, err := f.vk().Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, Profile{
		Provider: model.ProviderVK, ProviderID: "42", Name: "Иван Петров",
		Email: "ivan@mail.ru", AvatarURL: "https://vk.test/p.jpg",
	}, p)
	assert.Equal(t, "code-1", f.tokenForm.Get("code"))
	assert.Equal(t, "vk-app", f.tokenForm.Get("client_id"))
	assert.Equal(t, "vk-secret", f.tokenForm.Get("client_secret"))
	assert.Equal(t, "https://glukoza.app/auth/callback", f.tokenForm.Get("redirect_uri"))
}

func TestVK_ExchangeWithoutEmail(t *testing.T) {
	f := newFakeProvider(t)
	f.tokenBody = `{"access_token":"at-1","user_id":7}`
	f.apiBody = `{"response":[{"id":7,"first_name":"A","last_name":""}]}`

	p, err := f.vk().Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "vk_7@vk.local", p.Email)
	assert.Equal(t, "A", p.Name)
}

func TestExchange_Failures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{name: "error field", code: http.StatusOK, body: `{"error":"invalid_grant","error_description":"Code is invalid or expired."}`},
		{name: "error status", code: http.StatusUnauthorized, body: `{"error":"invalid_client"}`},
		{name: "missing token", code: http.StatusOK, body: `{"user_id":1}`},
		{name: "garbage", code: http.StatusOK, body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeProvider(t)
			f.tokenCode, f.tokenBody = tt.code, tt.body

			_, err := f.vk().Exchange(context.Background(), "code")
			assert.ErrorIs(t, err, ErrExchangeFailed)
			_, err = f.yandex().Exchange(context.Background(), "code")
			assert.ErrorIs(t, err, ErrExchangeFailed)
			assert.Zero(t, f.apiCalls.Load(), "profile must not be fetched after a failed exchange")
		})
	}
}

func TestExchange_NotConfigured(t *testing.T) {
	missing := func() (string, error) { return "", errors.New("secret not found") }
	vk := NewVK(Config{ClientID: "vk-app", Secret: missing}, Endpoints{})
	_, err := vk.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNotConfigured)

	ya := NewYandex(Config{Secret: staticSecret("x")}, Endpoints{})
	_, err = ya.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExchange_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	vk := NewVK(Config{ClientID: "a", Secret: staticSecret("b"), Timeout: 50 * time.Millisecond},
		Endpoints{TokenURL: srv.URL, APIURL: srv.URL})
	start := time.Now()
	_, err := vk.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestVK_GetUserError(t *testing.T) {
	f := newFakeProvider(t)
	f.apiBody = `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`
	_, err := f.vk().GetUser(context.Background(), "bad", "1")
	assert.ErrorIs(t, err, ErrProfileFailed)
	assert.Contains(t, err.Error(), "User authorization failed")
}

func TestYandex_Exchange(t *testing.T) {
	f := newFakeProvider(t)
	f.tokenBody = `{"access_token":"ya-at","token_type":"bearer","expires_in":3600}`
	f.apiBody = `{"id":"1130000","login":"ivan","default_email":"Ivan@yandex.ru","real_name":"Иван","default_avatar_id":"131652443/abc","is_avatar_empty":false}`

	p, err := f.yandex().Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "OAuth ya-at", f.authHeader)
	assert.Equal(t, Profile{
		Provider: model.ProviderYandex, ProviderID: "1130000", Name: "Иван",
		Email: "ivan@yandex.ru", AvatarURL: "https://avatars.yandex.net/get-yapic/131652443/abc/islands-200",
	}, p)
}

func TestYandex_NoEmailNoAvatar(t *testing.T) {
	f := newFakeProvider(t)
	f.tokenBody = `{"access_token":"ya-at"}`
	f.apiBody = `{"id":"55","login":"anon","is_avatar_empty":true,"default_avatar_id":"0/0"}`

	p, err := f.yandex().Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "yandex_55@yandex.local", p.Email)
	assert.Equal(t, "anon", p.Name)
	assert.Empty(t, p.AvatarURL)
}

func TestProviderFromState(t *testing.T) {
	tests := []struct {
		state string
		want  string
		err   bool
	}{
		{state: "vk", want: model.ProviderVK},
		{state: "vk:mobile", want: model.ProviderVK},
		{state: "VK", want: model.ProviderVK},
		{state: "yandex", want: model.ProviderYandex},
		{state: "yandex_login", want: model.ProviderYandex},
		{state: "vkontakte", err: true},
		{state: "", err: true},
		{state: "google", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got, err := ProviderFromState(tt.state)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

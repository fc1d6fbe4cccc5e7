package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/oauth"
)

type stubProvider struct {
	name    string
	profile oauth.Profile
	err     error
	users   map[string]oauth.VKUser
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Exchange(context.Context, string) (oauth.Profile, error) {
	return p.profile, p.err
}

func (p *stubProvider) GetUser(_ context.Context, token, _ string) (oauth.VKUser, error) {
	u, ok := p.users[token]
	if !ok {
		return oauth.VKUser{}, fmt.Errorf("%w: invalid token", oauth.ErrProfileFailed)
	}
	return u, nil
}

type stubAvatars struct {
	url   string
	err   error
	calls int
}

func (a *stubAvatars) Fetch(context.Context, string, string) (string, error) {
	a.calls++
	return a.url, a.err
}

func TestOAuthLogin_ExchangeErrorTouchesNothing(t *testing.T) {
	for _, provider := range []string{model.ProviderVK, model.ProviderYandex} {
		t.Run(provider, func(t *testing.T) {
			f := newFixture(t)
			p := &stubProvider{name: provider, err: fmt.Errorf("%w: invalid_grant", oauth.ErrExchangeFailed)}
			f.svc.WithProviders(p)

			_, err := f.svc.OAuthLogin(context.Background(), provider, "code")
			assert.ErrorIs(t, err, ErrOAuthExchangeFailed)
			assert.ErrorIs(t, err, ErrUpstream)
			assert.Contains(t, err.Error(), provider)
			assert.Zero(t, f.store.writes)
			assert.Zero(t, f.store.reads)
		})
	}
}

func TestOAuthLogin_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.svc.WithProviders(&stubProvider{name: model.ProviderYandex, err: oauth.ErrNotConfigured})
	_, err := f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	assert.ErrorIs(t, err, ErrOAuthNotConfigured)
	assert.ErrorIs(t, err, ErrConfiguration)

	f.svc.WithProviders(&stubProvider{name: model.ProviderYandex, err: oauth.ErrProfileFailed})
	_, err = f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	assert.ErrorIs(t, err, ErrOAuthProfileFailed)

	_, err = f.svc.OAuthLogin(context.Background(), "google", "code")
	assert.ErrorIs(t, err, ErrOAuthNotConfigured)
}

func TestOAuthLogin_CreatesYandexAccount(t *testing.T) {
	f := newFixture(t)
	avatars := &stubAvatars{url: "https://cdn.test/a.png"}
	f.svc.WithProviders(&stubProvider{name: model.ProviderYandex, profile: oauth.Profile{
		Provider: model.ProviderYandex, ProviderID: "900", Name: "Иван", Email: "ivan@yandex.ru",
		AvatarURL: "https://avatars.yandex.net/x",
	}}).WithAvatars(avatars)

	res, err := f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "900", res.User.YandexID)
	assert.Equal(t, "https://cdn.test/a.png", res.User.Avatar)
	assert.Equal(t, []string{model.StarterReward}, res.User.Rewards)
	assert.Empty(t, res.User.PasswordHash)
	assert.Equal(t, model.RoleUser, res.User.Role)

	again, err := f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, res.UserID, again.UserID)
	assert.Equal(t, 1, avatars.calls)
	assert.Equal(t, 1, f.store.Len())
}

func TestOAuthLogin_AvatarFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.svc.WithProviders(&stubProvider{name: model.ProviderYandex, profile: oauth.Profile{
		Provider: model.ProviderYandex, ProviderID: "1", Email: "y@ya.ru", AvatarURL: "https://x/huge.png",
	}}).WithAvatars(&stubAvatars{err: errors.New("too large")})

	res, err := f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	require.NoError(t, err)
	assert.Empty(t, res.User.Avatar)
}

func TestOAuthLogin_VKMatchesByEmailAndLinks(t *testing.T) {
	f := newFixture(t)
	reg, err := f.register(t, "ivan@mail.ru", "abc123")
	require.NoError(t, err)

	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, profile: oauth.Profile{
		Provider: model.ProviderVK, ProviderID: "42", Email: "ivan@mail.ru",
	}})
	res, err := f.svc.OAuthLogin(context.Background(), model.ProviderVK, "code")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, res.UserID)
	assert.False(t, res.IsNewUser)

	linked, err := f.store.GetByProvider(context.Background(), model.ProviderVK, "42")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, linked.ID)
}

func TestOAuthLogin_VKMatchesByID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.MemoryUserRepo.Create(context.Background(),
		&model.User{ID: "000000000005", Email: "old@mail.ru", VKID: "42"}))
	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, profile: oauth.Profile{
		Provider: model.ProviderVK, ProviderID: "42", Email: "new@mail.ru",
	}})

	res, err := f.svc.OAuthLogin(context.Background(), model.ProviderVK, "code")
	require.NoError(t, err)
	assert.Equal(t, "000000000005", res.UserID)
}

func TestOAuthLogin_ConcurrentCreateFallsBackToExisting(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.MemoryUserRepo.Create(context.Background(),
		&model.User{ID: "000000000003", Email: "race@ya.ru"}))
	// the record appears between the lookup and the insert
	f.store.emailMisses = 1
	f.svc.WithProviders(&stubProvider{name: model.ProviderYandex, profile: oauth.Profile{
		Provider: model.ProviderYandex, ProviderID: "7", Email: "race@ya.ru",
	}})

	res, err := f.svc.OAuthLogin(context.Background(), model.ProviderYandex, "code")
	require.NoError(t, err)
	assert.Equal(t, "000000000003", res.UserID)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, 1, f.store.Len())
}

func TestVKCallback(t *testing.T) {
	f := newFixture(t)
	vk := &stubProvider{name: model.ProviderVK, users: map[string]oauth.VKUser{
		"tok": {ID: 42, FirstName: "Иван", LastName: "Петров", Photo200: "https://vk.test/p.jpg"},
	}}
	f.svc.WithProviders(vk)

	res, err := f.svc.VKCallback(context.Background(), VKCallbackInput{
		AccessToken: "tok", UserData: VKUserData{ID: "42", Email: "Ivan@Mail.ru"}, Action: "register",
	})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "ivan@mail.ru", res.User.Email)
	assert.Equal(t, "42", res.User.VKID)
	assert.Equal(t, "Иван Петров", res.User.Name)

	res2, err := f.svc.VKCallback(context.Background(), VKCallbackInput{AccessToken: "tok", Action: "login"})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, res2.UserID)
	assert.False(t, res2.IsNewUser)
}

func TestVKCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VKCallback(context.Background(), VKCallbackInput{AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrOAuthNotConfigured)

	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, users: map[string]oauth.VKUser{"tok": {ID: 42}}})
	_, err = f.svc.VKCallback(context.Background(), VKCallbackInput{})
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = f.svc.VKCallback(context.Background(), VKCallbackInput{AccessToken: "forged"})
	assert.ErrorIs(t, err, ErrOAuthProfileFailed)

	_, err = f.svc.VKCallback(context.Background(), VKCallbackInput{AccessToken: "tok", UserData: VKUserData{ID: "43"}})
	assert.ErrorIs(t, err, ErrOAuthProfileFailed)
	assert.Zero(t, f.store.writes)

	res, err := f.svc.VKCallback(context.Background(), VKCallbackInput{AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "vk_42@vk.local", res.User.Email)
}

func TestVKCallback_ClientEmailNeverSelectsExistingAccount(t *testing.T) {
	f := newFixture(t)
	victim, err := f.register(t, "victim@x.com", "abc123")
	require.NoError(t, err)
	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, users: map[string]oauth.VKUser{
		"attacker-token": {ID: 999, FirstName: "Mallory"},
	}})

	res, err := f.svc.VKCallback(context.Background(), VKCallbackInput{
		AccessToken: "attacker-token", UserData: VKUserData{ID: "999", Email: "Victim@X.com"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, victim.UserID, res.UserID)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "vk_999@vk.local", res.User.Email)
	assert.Equal(t, "999", res.User.VKID)

	stored, err := f.store.GetByID(context.Background(), victim.UserID)
	require.NoError(t, err)
	assert.Empty(t, stored.VKID)

	// the same VK account signs back into its own record
	again, err := f.svc.VKCallback(context.Background(), VKCallbackInput{
		AccessToken: "attacker-token", UserData: VKUserData{Email: "victim@x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, again.UserID)
	assert.False(t, again.IsNewUser)
}

func TestVKCallback_AvatarOnlyFromProvider(t *testing.T) {
	f := newFixture(t)
	avatars := &stubAvatars{url: "https://cdn.test/a.jpg"}
	f.svc.WithAvatars(avatars)
	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, users: map[string]oauth.VKUser{
		"tok": {ID: 7},
	}})

	res, err := f.svc.VKCallback(context.Background(), VKCallbackInput{
		AccessToken: "tok", UserData: VKUserData{Avatar: "http://169.254.169.254/latest/meta-data"},
	})
	require.NoError(t, err)
	assert.Zero(t, avatars.calls)
	assert.Empty(t, res.User.Avatar)
}

func TestVKUser(t *testing.T) {
	f := newFixture(t)
	f.svc.WithProviders(&stubProvider{name: model.ProviderVK, users: map[string]oauth.VKUser{"tok": {ID: 1, FirstName: "A"}}})

	u, err := f.svc.VKUser(context.Background(), "tok", "1")
	require.NoError(t, err)
	assert.Equal(t, "A", u.FirstName)

	_, err = f.svc.VKUser(context.Background(), "", "1")
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = f.svc.VKUser(context.Background(), "bad", "1")
	assert.ErrorIs(t, err, ErrOAuthProfileFailed)
}

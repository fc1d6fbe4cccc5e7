// Package oauth exchanges VK and Yandex authorization codes for a normalized
// user profile.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/glukogo/authsvc/internal/model"
)

var (
	// ErrExchangeFailed covers every failure of the code-for-token step:
	// transport errors, non-2xx replies, an `error` field or a missing token.
	ErrExchangeFailed = errors.New("oauth: code exchange failed")
	ErrProfileFailed  = errors.New("oauth: profile fetch failed")
	ErrNotConfigured  = errors.New("oauth: provider not configured")
	ErrUnknownState   = errors.New("oauth: unknown provider in state")
)

// DefaultTimeout bounds each provider HTTP call.
const DefaultTimeout = 10 * time.Second

// Profile is the provider-independent view of an OAuth user.
type Profile struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatar,omitempty"`
}

// Provider turns an authorization code into a Profile.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// Config is shared by both providers.  Secret is resolved on every exchange
// so a missing secret only fails that provider's flow.
type Config struct {
	ClientID    string
	Secret      func() (string, error)
	RedirectURI string
	Timeout     time.Duration
}

// Endpoints override provider URLs, used by tests.
type Endpoints struct {
	TokenURL string
	APIURL   string
}

type client struct {
	cfg       Config
	endpoints Endpoints
	http      *http.Client
}

func newClient(cfg Config, ep Endpoints) client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return client{cfg: cfg, endpoints: ep, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c client) oauthConfig() (*oauth2.Config, error) {
	if c.cfg.ClientID == "" || c.cfg.Secret == nil {
		return nil, ErrNotConfigured
	}
	secret, err := c.cfg.Secret()
	if err != nil || secret == "" {
		return nil, fmt.Errorf("%w: client secret: %v", ErrNotConfigured, err)
	}
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: secret,
		RedirectURL:  c.cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

// exchange trades code for a token using the timeout-bounded client.
func (c client) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	conf, err := c.oauthConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty code", ErrExchangeFailed)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrExchangeFailed)
	}
	return tok, nil
}

// FallbackEmail is the synthetic address given to accounts whose provider
// did not share an email.
func FallbackEmail(provider, providerID string) string {
	return fmt.Sprintf("%s_%s@%s.local", provider, providerID, provider)
}

// ProviderFromState maps the OAuth `state` parameter to a provider name.
// "vk" and "vk:<anything>" select VK, any value starting with "yandex"
// selects Yandex.
func ProviderFromState(state string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(state))
	switch {
	case s == model.ProviderVK || strings.HasPrefix(s, model.ProviderVK+":"):
		return model.ProviderVK, nil
	case strings.HasPrefix(s, model.ProviderYandex):
		return model.ProviderYandex, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, state)
}

func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

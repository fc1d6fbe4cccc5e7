package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/glukogo/authsvc/internal/model"
)

const (
	YandexTokenURL  = "https://oauth.yandex.ru/token"
	YandexAPIURL    = "https://login.yandex.ru/info"
	yandexAvatarURL = "https://avatars.yandex.net/get-yapic/%s/islands-200"
)

// Yandex implements Provider for Yandex ID.
type Yandex struct{ client }

func NewYandex(cfg Config, ep Endpoints) *Yandex {
	if ep.TokenURL == "" {
		ep.TokenURL = YandexTokenURL
	}
	if ep.APIURL == "" {
		ep.APIURL = YandexAPIURL
	}
	return &Yandex{newClient(cfg, ep)}
}

func (y *Yandex) Name() string { return model.ProviderYandex }

type yandexInfo struct {
	ID              string   `json:"id"`
	Login           string   `json:"login"`
	DefaultEmail    string   `json:"default_email"`
	Emails          []string `json:"emails"`
	RealName        string   `json:"real_name"`
	DisplayName     string   `json:"display_name"`
	DefaultAvatarID string   `json:"default_avatar_id"`
	IsAvatarEmpty   bool     `json:"is_avatar_empty"`
}

func (y *Yandex) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := y.exchange(ctx, code)
	if err != nil {
		return Profile{}, err
	}
	info, err := y.info(ctx, tok.AccessToken)
	if err != nil {
		return Profile{}, err
	}
	if info.ID == "" {
		return Profile{}, fmt.Errorf("%w: yandex profile without id", ErrProfileFailed)
	}

	p := Profile{Provider: model.ProviderYandex, ProviderID: info.ID}
	switch {
	case info.RealName != "":
		p.Name = info.RealName
	case info.DisplayName != "":
		p.Name = info.DisplayName
	default:
		p.Name = info.Login
	}
	email := info.DefaultEmail
	if email == "" && len(info.Emails) > 0 {
		email = info.Emails[0]
	}
	if email == "" {
		email = FallbackEmail(model.ProviderYandex, info.ID)
	}
	p.Email = strings.ToLower(email)
	if !info.IsAvatarEmpty && info.DefaultAvatarID != "" {
		p.AvatarURL = fmt.Sprintf(yandexAvatarURL, info.DefaultAvatarID)
	}
	return p, nil
}

func (y *Yandex) info(ctx context.Context, accessToken string) (*yandexInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.endpoints.APIURL+"?format=json", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := y.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yandex api returned status %d", ErrProfileFailed, resp.StatusCode)
	}
	var info yandexInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProfileFailed, err)
	}
	return &info, nil
}

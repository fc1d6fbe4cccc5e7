package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/glukogo/authsvc/internal/model"
)

// VK API defaults.
const (
	VKTokenURL   = "https://oauth.vk.com/access_token"
	VKAPIURL     = "https://api.vk.com/method"
	VKAPIVersion = "5.131"
)

// VK implements Provider for VK ID.  The user's email arrives with the
// token response, not with the profile.
type VK struct{ client }

func NewVK(cfg Config, ep Endpoints) *VK {
	if ep.TokenURL == "" {
		ep.TokenURL = VKTokenURL
	}
	if ep.APIURL == "" {
		ep.APIURL = VKAPIURL
	}
	return &VK{newClient(cfg, ep)}
}

func (v *VK) Name() string { return model.ProviderVK }

func (v *VK) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := v.exchange(ctx, code)
	if err != nil {
		return Profile{}, err
	}
	p, err := v.FetchProfile(ctx, tok.AccessToken, extraString(tok, "user_id"))
	if err != nil {
		return Profile{}, err
	}
	if email := extraString(tok, "email"); email != "" {
		p.Email = strings.ToLower(email)
	}
	if p.Email == "" {
		p.Email = FallbackEmail(model.ProviderVK, p.ProviderID)
	}
	return p, nil
}

// VKUser is one entry of a users.get reply.
type VKUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Photo200  string `json:"photo_200,omitempty"`
}

type vkUsersReply struct {
	Response []VKUser `json:"response"`
	Error    *struct {
		Code int    `json:"error_code"`
		Msg  string `json:"error_msg"`
	} `json:"error"`
}

// GetUser calls users.get for userID (the token owner when empty).
func (v *VK) GetUser(ctx context.Context, accessToken, userID string) (VKUser, error) {
	if accessToken == "" {
		return VKUser{}, fmt.Errorf("%w: empty access token", ErrProfileFailed)
	}
	q := url.Values{}
	q.Set("fields", "photo_200")
	q.Set("access_token", accessToken)
	q.Set("v", VKAPIVersion)
	if userID != "" {
		q.Set("user_ids", userID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(v.endpoints.APIURL, "/")+"/users.get?"+q.Encode(), nil)
	if err != nil {
		return VKUser{}, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return VKUser{}, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return VKUser{}, fmt.Errorf("%w: vk api returned status %d", ErrProfileFailed, resp.StatusCode)
	}
	var reply vkUsersReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return VKUser{}, fmt.Errorf("%w: decode: %v", ErrProfileFailed, err)
	}
	if reply.Error != nil {
		return VKUser{}, fmt.Errorf("%w: vk error %d: %s", ErrProfileFailed, reply.Error.Code, reply.Error.Msg)
	}
	if len(reply.Response) == 0 {
		return VKUser{}, fmt.Errorf("%w: empty users.get response", ErrProfileFailed)
	}
	return reply.Response[0], nil
}

// FetchProfile normalizes GetUser.  Email is left empty; VK only shares it
// with the token.
func (v *VK) FetchProfile(ctx context.Context, accessToken, userID string) (Profile, error) {
	u, err := v.GetUser(ctx, accessToken, userID)
	if err != nil {
		return Profile{}, err
	}
	return u.Profile(), nil
}

// Profile converts a VK user.
func (u VKUser) Profile() Profile {
	return Profile{
		Provider:   model.ProviderVK,
		ProviderID: strconv.FormatInt(u.ID, 10),
		Name:       strings.TrimSpace(u.FirstName + " " + u.LastName),
		AvatarURL:  u.Photo200,
	}
}

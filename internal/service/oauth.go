package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glukogo/authsvc/internal/logging"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/oauth"
	"github.com/glukogo/authsvc/internal/repository"
)

// OAuthLogin exchanges code with provider and signs in the matching account,
// creating it on first use.  Nothing touches the store until the exchange and
// profile fetch have succeeded.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, code string) (AuthResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return AuthResult{}, fmt.Errorf("%s: %w", provider, ErrOAuthNotConfigured)
	}
	if strings.TrimSpace(code) == "" {
		return AuthResult{}, ErrMissingFields
	}
	profile, err := p.Exchange(ctx, code)
	if err != nil {
		logging.FromContext(ctx).Warn("oauth exchange failed", slog.String("provider", provider), logging.Err(err))
		return AuthResult{}, mapOAuthError(provider, err)
	}
	return s.signInWithProfile(ctx, profile)
}

func mapOAuthError(provider string, err error) error {
	switch {
	case errors.Is(err, oauth.ErrNotConfigured):
		return fmt.Errorf("%s: %w", provider, ErrOAuthNotConfigured)
	case errors.Is(err, oauth.ErrExchangeFailed):
		return fmt.Errorf("%s: %w: %v", provider, ErrOAuthExchangeFailed, err)
	default:
		return fmt.Errorf("%s: %w: %v", provider, ErrOAuthProfileFailed, err)
	}
}

// VKUserData is the profile the VK ID SDK hands the client.
type VKUserData struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
}

// VKCallbackInput is the body of the client-side VK sign-in.
type VKCallbackInput struct {
	AccessToken string
	UserData    VKUserData
	Action      string // "login" or "register"; informational
}

// VKCallback signs in with a token obtained by the VK ID SDK.  The token is
// always checked against users.get; a client-supplied id that does not
// belong to the token is rejected.  VK only shares email with the client, so
// the email from UserData is unverified: it may seed a new account but never
// selects or links an existing one.  The avatar is only taken from users.get.
func (s *AuthService) VKCallback(ctx context.Context, in VKCallbackInput) (AuthResult, error) {
	if strings.TrimSpace(in.AccessToken) == "" {
		return AuthResult{}, ErrMissingFields
	}
	if s.vk == nil {
		return AuthResult{}, fmt.Errorf("%s: %w", model.ProviderVK, ErrOAuthNotConfigured)
	}
	vkUser, err := s.vk.GetUser(ctx, in.AccessToken, "")
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w: %v", model.ProviderVK, ErrOAuthProfileFailed, err)
	}
	profile := vkUser.Profile()
	if in.UserData.ID != "" && in.UserData.ID != profile.ProviderID {
		return AuthResult{}, fmt.Errorf("%s: %w: token belongs to another user", model.ProviderVK, ErrOAuthProfileFailed)
	}
	if name := strings.TrimSpace(in.UserData.FirstName + " " + in.UserData.LastName); profile.Name == "" {
		profile.Name = name
	}
	profile.Email = normalizeEmail(in.UserData.Email)
	if profile.Email == "" || !validEmail(profile.Email) {
		profile.Email = oauth.FallbackEmail(model.ProviderVK, profile.ProviderID)
	}
	logging.FromContext(ctx).Info("vk callback", slog.String("action", in.Action), slog.String("vk_id", profile.ProviderID))
	return s.signInUnverified(ctx, profile)
}

// signInUnverified resolves a VK profile whose email came from the client.
// Existing accounts are matched by VK id only.  An email that already
// belongs to another account is replaced by the synthetic address.
func (s *AuthService) signInUnverified(ctx context.Context, p oauth.Profile) (AuthResult, error) {
	u, err := s.users.GetByProvider(ctx, p.Provider, p.ProviderID)
	if err == nil {
		return s.result(u)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, err
	}

	fallback := oauth.FallbackEmail(p.Provider, p.ProviderID)
	if p.Email != fallback {
		_, err := s.users.GetByEmail(ctx, p.Email)
		switch {
		case err == nil:
			logging.FromContext(ctx).Warn("vk callback email belongs to another account",
				slog.String("vk_id", p.ProviderID))
			p.Email = fallback
		case !errors.Is(err, repository.ErrNotFound):
			return AuthResult{}, err
		}
	}

	u, err = s.createFromProfile(ctx, p)
	if errors.Is(err, repository.ErrEmailExists) {
		// a concurrent callback for the same VK id won the insert
		if u, err = s.users.GetByProvider(ctx, p.Provider, p.ProviderID); err == nil {
			return s.result(u)
		}
		// or the claimed email was registered in between
		if p.Email != fallback {
			p.Email = fallback
			u, err = s.createFromProfile(ctx, p)
		}
	}
	if err != nil {
		return AuthResult{}, err
	}
	res, err := s.result(u)
	res.IsNewUser = true
	return res, err
}

// VKUser proxies users.get for the client.
func (s *AuthService) VKUser(ctx context.Context, accessToken, userID string) (oauth.VKUser, error) {
	if accessToken == "" {
		return oauth.VKUser{}, ErrMissingFields
	}
	if s.vk == nil {
		return oauth.VKUser{}, fmt.Errorf("%s: %w", model.ProviderVK, ErrOAuthNotConfigured)
	}
	u, err := s.vk.GetUser(ctx, accessToken, userID)
	if err != nil {
		return oauth.VKUser{}, fmt.Errorf("%s: %w: %v", model.ProviderVK, ErrOAuthProfileFailed, err)
	}
	return u, nil
}

func (s *AuthService) signInWithProfile(ctx context.Context, p oauth.Profile) (AuthResult, error) {
	u, err := s.findByProfile(ctx, p)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, err
	}
	if u != nil {
		return s.result(u)
	}

	u, err = s.createFromProfile(ctx, p)
	if errors.Is(err, repository.ErrEmailExists) {
		// a concurrent sign-in created the account first
		if u, err = s.users.GetByEmail(ctx, p.Email); err == nil {
			return s.result(u)
		}
	}
	if err != nil {
		return AuthResult{}, err
	}
	res, err := s.result(u)
	res.IsNewUser = true
	return res, err
}

// findByProfile resolves the account for a profile returned by the provider
// itself: Yandex by email, VK by linked id and then by email.  A VK match by
// email links the VK id to the account.  Profiles carrying a client-supplied
// email go through signInUnverified instead.
func (s *AuthService) findByProfile(ctx context.Context, p oauth.Profile) (*model.User, error) {
	if p.Provider == model.ProviderVK {
		u, err := s.users.GetByProvider(ctx, model.ProviderVK, p.ProviderID)
		if !errors.Is(err, repository.ErrNotFound) {
			return u, err
		}
	}
	u, err := s.users.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	if p.Provider == model.ProviderVK && u.VKID == "" {
		if err := s.users.LinkProvider(ctx, u.ID, model.ProviderVK, p.ProviderID); err != nil {
			logging.FromContext(ctx).Warn("link vk id failed", slog.String("user_id", u.ID), logging.Err(err))
		} else {
			u.VKID = p.ProviderID
		}
	}
	return u, nil
}

func (s *AuthService) createFromProfile(ctx context.Context, p oauth.Profile) (*model.User, error) {
	u := s.newUser(normalizeEmail(p.Email), p.Name)
	u.SetProviderID(p.Provider, p.ProviderID)
	if s.avatars != nil && p.AvatarURL != "" {
		url, err := s.avatars.Fetch(ctx, p.Provider+"_"+p.ProviderID, p.AvatarURL)
		if err != nil {
			logging.FromContext(ctx).Warn("avatar download failed", slog.String("provider", p.Provider), logging.Err(err))
		} else {
			u.Avatar = url
		}
	}
	if err := s.createUser(ctx, u); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("user created via oauth",
		slog.String("user_id", u.ID), slog.String("provider", p.Provider))
	return u, nil
}

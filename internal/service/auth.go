// Package service implements registration, login, OAuth sign-in and the
// account operations exposed over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/glukogo/authsvc/internal/logging"
	mailer "github.com/glukogo/authsvc/internal/mail"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/oauth"
	"github.com/glukogo/authsvc/internal/repository"
	"github.com/glukogo/authsvc/internal/utils"
	"github.com/glukogo/authsvc/internal/verification"
)

// createAttempts bounds Create retries after an id collision.
const createAttempts = 2

// Options are the tunables of AuthService.
type Options struct {
	AdminEmail   string        // registers with the admin role
	PioneerLimit int           // ids up to this number are pioneers
	BcryptCost   int           // 0 selects utils.DefaultBcryptCost
	CodeTTL      time.Duration // shown in the verification email
}

// AvatarFetcher copies a remote avatar and returns the stored URL.
type AvatarFetcher interface {
	Fetch(ctx context.Context, owner, url string) (string, error)
}

// VKProfiles reads VK profiles with a user-supplied access token.
type VKProfiles interface {
	GetUser(ctx context.Context, accessToken, userID string) (oauth.VKUser, error)
}

// AuthResult is the successful outcome of every sign-in path.
type AuthResult struct {
	Token         string
	UserID        string
	IsPioneer     bool
	PioneerNumber int64
	IsNewUser     bool
	User          *model.User
}

// AuthService orchestrates the credential store, code registry, mail
// transport, token issuer and OAuth providers.
type AuthService struct {
	users     repository.UserStore
	codes     verification.Registry
	mail      mailer.Sender
	tokens    *utils.TokenIssuer
	opts      Options
	providers map[string]oauth.Provider
	vk        VKProfiles
	avatars   AvatarFetcher
	now       func() time.Time

	// verify compares a password with a hash; dummyHash is compared when the
	// account has no hash so every login pays one bcrypt comparison.
	verify    func(hash, plain string) bool
	dummyHash func() string
}

func NewAuthService(users repository.UserStore, codes verification.Registry, m mailer.Sender, tokens *utils.TokenIssuer, opts Options) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = utils.DefaultBcryptCost
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = verification.DefaultTTL
	}
	opts.AdminEmail = normalizeEmail(opts.AdminEmail)
	return &AuthService{
		users:     users,
		codes:     codes,
		mail:      m,
		tokens:    tokens,
		opts:      opts,
		providers: map[string]oauth.Provider{},
		now:       time.Now,
		verify:    utils.VerifyPassword,
		dummyHash: sync.OnceValue(func() string {
			h, _ := utils.HashPassword("glukoza-login-placeholder", opts.BcryptCost)
			return h
		}),
	}
}

// WithProviders registers OAuth providers by name.  A VK provider also
// serves VKUser and VKCallback.
func (s *AuthService) WithProviders(ps ...oauth.Provider) *AuthService {
	for _, p := range ps {
		s.providers[p.Name()] = p
		if vk, ok := p.(VKProfiles); ok {
			s.vk = vk
		}
	}
	return s
}

// WithAvatars enables copying provider avatars for new OAuth accounts.
func (s *AuthService) WithAvatars(f AvatarFetcher) *AuthService {
	s.avatars = f
	return s
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// CheckEmail reports whether an account with email exists.
func (s *AuthService) CheckEmail(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, ErrMissingFields
	}
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	}
	return false, err
}

// SendVerification issues a code for email and mails it.  A delivery
// failure is returned but the issued code stays valid.
func (s *AuthService) SendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingFields
	}
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	code, err := s.codes.Issue(ctx, email)
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}
	msg, err := mailer.VerificationMessage(email, code, s.opts.CodeTTL)
	if err != nil {
		return err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		logging.FromContext(ctx).Error("verification mail failed", slog.String("email", email), logging.Err(err))
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// RegisterInput is the local registration request.
type RegisterInput struct {
	Email    string
	Password string
	Code     string
	Name     string
}

// Register creates a local account.  Stages run in order and the first
// failure stops the flow: password policy, code check, email uniqueness,
// persistence, token.  Nothing is written before persistence.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)
	if email == "" || in.Password == "" || code == "" {
		return AuthResult{}, ErrMissingFields
	}
	if !validEmail(email) {
		return AuthResult{}, ErrInvalidEmail
	}

	if err := utils.CheckPasswordPolicy(in.Password); err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	ok, err := s.codes.Verify(ctx, email, code)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		return AuthResult{}, ErrInvalidOrExpiredCode
	}

	taken, err := s.CheckEmail(ctx, email)
	if err != nil {
		return AuthResult{}, err
	}
	if taken {
		return AuthResult{}, ErrEmailTaken
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := s.newUser(email, strings.TrimSpace(in.Name))
	u.PasswordHash = hash
	if email == s.opts.AdminEmail && s.opts.AdminEmail != "" {
		u.Role = model.RoleAdmin
	}
	if err := s.createUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}
	logging.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID), slog.String("role", u.Role))

	res, err := s.result(u)
	res.IsNewUser = true
	return res, err
}

// Login checks email and password.  ErrNoSuchUser and ErrInvalidCredentials
// both wrap ErrAuthentication.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrMissingFields
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// same bcrypt work as a wrong password
		s.verify(s.dummyHash(), password)
		return AuthResult{}, ErrNoSuchUser
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !u.HasPassword() {
		s.verify(s.dummyHash(), password)
		return AuthResult{}, ErrInvalidCredentials
	}
	if !s.verify(u.PasswordHash, password) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.result(u)
}

func (s *AuthService) newUser(email, name string) *model.User {
	u := &model.User{
		Email:     email,
		Name:      name,
		Role:      model.RoleUser,
		Rewards:   []string{},
		CreatedAt: s.now().UTC(),
	}
	u.GrantReward(model.StarterReward)
	return u
}

// createUser assigns an identifier and inserts u, deriving a fresh
// identifier once if another insert took the first one.
func (s *AuthService) createUser(ctx context.Context, u *model.User) error {
	for attempt := 1; ; attempt++ {
		u.ID = repository.NextID(ctx, s.users)
		err := s.users.Create(ctx, u)
		if errors.Is(err, repository.ErrIDConflict) && attempt < createAttempts {
			logging.FromContext(ctx).Warn("user id collision, retrying", slog.String("user_id", u.ID))
			continue
		}
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	}
}

func (s *AuthService) result(u *model.User) (AuthResult, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return AuthResult{}, err
	}
	res := AuthResult{Token: token, UserID: u.ID, User: u}
	if seq := u.Sequence(); seq > 0 && seq <= int64(s.opts.PioneerLimit) {
		res.IsPioneer = true
		res.PioneerNumber = seq
	}
	return res, nil
}

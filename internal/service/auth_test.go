package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailer "github.com/glukogo/authsvc/internal/mail"
	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/oauth"
	"github.com/glukogo/authsvc/internal/repository"
	"github.com/glukogo/authsvc/internal/utils"
	"github.com/glukogo/authsvc/internal/verification"
)

// countingStore records writes and can inject failures into Create.
type countingStore struct {
	*repository.MemoryUserRepo
	mu          sync.Mutex
	creates     int
	writes      int
	reads       int
	createErrs  []error
	maxIDErr    error
	emailMisses int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryUserRepo: repository.NewMemoryUserRepo()}
}

func (s *countingStore) MaxSequentialID(ctx context.Context) (string, error) {
	if s.maxIDErr != nil {
		return "", s.maxIDErr
	}
	return s.MemoryUserRepo.MaxSequentialID(ctx)
}

func (s *countingStore) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	s.creates++
	s.writes++
	var injected error
	if len(s.createErrs) > 0 {
		injected, s.createErrs = s.createErrs[0], s.createErrs[1:]
	}
	s.mu.Unlock()
	if injected != nil {
		return injected
	}
	return s.MemoryUserRepo.Create(ctx, u)
}

func (s *countingStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	s.reads++
	miss := s.emailMisses > 0
	if miss {
		s.emailMisses--
	}
	s.mu.Unlock()
	if miss {
		return nil, repository.ErrNotFound
	}
	return s.MemoryUserRepo.GetByEmail(ctx, email)
}

func (s *countingStore) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.MemoryUserRepo.LinkProvider(ctx, id, provider, providerID)
}

type capturedMail struct {
	mu   sync.Mutex
	msgs []mailer.Message
	err  error
}

func (c *capturedMail) Send(_ context.Context, m mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return c.err
}

type fixture struct {
	svc    *AuthService
	store  *countingStore
	codes  *verification.MemoryRegistry
	mail   *capturedMail
	tokens *utils.TokenIssuer
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newCountingStore(),
		mail:   &capturedMail{},
		tokens: utils.NewTokenIssuer("test-secret", 0),
		clock:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.codes = verification.NewMemoryRegistry(verification.DefaultTTL).WithClock(func() time.Time { return f.clock })
	f.svc = NewAuthService(f.store, f.codes, f.mail, f.tokens, Options{
		AdminEmail:   "admin@glukoza.app",
		PioneerLimit: 1000,
		BcryptCost:   4,
	})
	return f
}

func (f *fixture) register(t *testing.T, email, password string) (AuthResult, error) {
	t.Helper()
	f.codes.Put(email, "111111")
	return f.svc.Register(context.Background(), RegisterInput{Email: email, Password: password, Code: "111111"})
}

func TestRegister_Scenario(t *testing.T) {
	f := newFixture(t)
	res, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	assert.Regexp(t, `^\d{12}$`, res.UserID)
	assert.Equal(t, "000000000001", res.UserID)
	assert.True(t, res.IsPioneer)
	assert.Equal(t, int64(1), res.PioneerNumber)
	assert.True(t, res.IsNewUser)

	id, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, id)

	assert.Equal(t, 1, f.store.Len())
	u, err := f.store.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{model.StarterReward}, u.Rewards)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Zero(t, u.Glukocoins)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "abc123"))
}

func TestRegister_WeakPasswordWritesNothing(t *testing.T) {
	for _, pw := range []string{"a", "ab1", "abcde", "123456", "!!!!!!!!", "12345678901"} {
		t.Run(pw, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.register(t, "a@x.com", pw)
			assert.ErrorIs(t, err, ErrWeakPassword)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, "weak_password", Code(err))
			assert.Zero(t, f.store.writes)

			// the code was not consumed by a policy failure
			ok, _ := f.codes.Verify(context.Background(), "a@x.com", "111111")
			assert.True(t, ok)
		})
	}
}

func TestRegister_EmailTakenTwice(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	_, err = f.register(t, "A@X.com", "other1")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 1, f.store.Len())
}

func TestRegister_ExpiredCode(t *testing.T) {
	f := newFixture(t)
	code, err := f.codes.Issue(context.Background(), "b@x.com")
	require.NoError(t, err)

	f.clock = f.clock.Add(verification.DefaultTTL + time.Second)
	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "b@x.com", Password: "abc123", Code: code})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Zero(t, f.store.writes)
}

func TestRegister_CodeSingleUse(t *testing.T) {
	f := newFixture(t)
	f.codes.Put("a@x.com", "222222")
	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "abc123", Code: "222222"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(context.Background(), "000000000001"))

	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "abc123", Code: "222222"})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestRegister_MissingFields(t *testing.T) {
	f := newFixture(t)
	tests := []RegisterInput{
		{Password: "abc123", Code: "1"},
		{Email: "a@x.com", Code: "1"},
		{Email: "a@x.com", Password: "abc123"},
	}
	for _, in := range tests {
		_, err := f.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrMissingFields)
	}
	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "abc123", Code: "1"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestRegister_AdminBootstrap(t *testing.T) {
	f := newFixture(t)
	res, err := f.register(t, " Admin@Glukoza.app", "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.User.Role)
}

func TestRegister_RetriesIDConflictOnce(t *testing.T) {
	f := newFixture(t)
	f.store.createErrs = []error{repository.ErrIDConflict}
	res, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.creates)
	assert.Equal(t, "000000000001", res.UserID)

	f = newFixture(t)
	f.store.createErrs = []error{repository.ErrIDConflict, repository.ErrIDConflict}
	_, err = f.register(t, "a@x.com", "abc123")
	assert.ErrorIs(t, err, repository.ErrIDConflict)
	assert.Equal(t, 2, f.store.creates)
	assert.Zero(t, f.store.Len())
}

func TestRegister_FallbackIDIsNotPioneer(t *testing.T) {
	f := newFixture(t)
	f.store.maxIDErr = errors.New("index unavailable")
	res, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)
	assert.Greater(t, len(res.UserID), 12)
	assert.False(t, res.IsPioneer)
	assert.Zero(t, res.PioneerNumber)
}

func TestRegister_PioneerLimit(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.PioneerLimit = 1
	_, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)
	res, err := f.register(t, "b@x.com", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "000000000002", res.UserID)
	assert.False(t, res.IsPioneer)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	reg, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	res, err := f.svc.Login(context.Background(), "A@x.com", "abc123")
	require.NoError(t, err)
	id, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, id)

	_, err = f.svc.Login(context.Background(), "a@x.com", "abc124")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = f.svc.Login(context.Background(), "ghost@x.com", "abc123")
	assert.ErrorIs(t, err, ErrNoSuchUser)
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = f.svc.Login(context.Background(), "", "abc123")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestLogin_OAuthOnlyAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.MemoryUserRepo.Create(context.Background(),
		&model.User{ID: "000000000001", Email: "vk_1@vk.local", VKID: "1"}))
	_, err := f.svc.Login(context.Background(), "vk_1@vk.local", "anything1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EveryFailureRunsOneComparison(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)
	require.NoError(t, f.store.MemoryUserRepo.Create(context.Background(),
		&model.User{ID: "000000000002", Email: "vk_1@vk.local", VKID: "1"}))

	var hashes []string
	f.svc.verify = func(hash, plain string) bool {
		hashes = append(hashes, hash)
		return utils.VerifyPassword(hash, plain)
	}

	cases := []struct {
		name  string
		email string
		want  error
	}{
		{"wrong password", "a@x.com", ErrInvalidCredentials},
		{"unknown email", "ghost@x.com", ErrNoSuchUser},
		{"oauth only", "vk_1@vk.local", ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hashes = nil
			_, err := f.svc.Login(context.Background(), tc.email, "wrong1")
			assert.ErrorIs(t, err, tc.want)
			require.Len(t, hashes, 1)
			assert.NotEmpty(t, hashes[0])
		})
	}
}

func TestSendVerification(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SendVerification(context.Background(), " C@x.com "))
	require.Len(t, f.mail.msgs, 1)
	assert.Equal(t, "c@x.com", f.mail.msgs[0].To)

	assert.ErrorIs(t, f.svc.SendVerification(context.Background(), ""), ErrMissingFields)
	assert.ErrorIs(t, f.svc.SendVerification(context.Background(), "nope"), ErrInvalidEmail)
}

func TestSendVerification_FailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("relay down")
	err := f.svc.SendVerification(context.Background(), "c@x.com")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, ErrUpstream)

	require.Len(t, f.mail.msgs, 1)
	code := extractCode(t, f.mail.msgs[0].HTMLBody)
	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "c@x.com", Password: "abc123", Code: code})
	assert.NoError(t, err)
}

func extractCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+6 <= len(body); i++ {
		s := body[i : i+6]
		ok := true
		for _, c := range s {
			if c < '0' || c > '9' {
				ok = false
				break
			}
		}
		if ok && (i+6 == len(body) || body[i+6] < '0' || body[i+6] > '9') && (i == 0 || body[i-1] < '0' || body[i-1] > '9') {
			return s
		}
	}
	t.Fatal("no code in body")
	return ""
}

func TestCheckEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	exists, err := f.svc.CheckEmail(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = f.svc.CheckEmail(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	u, err := f.svc.UpdateName(ctx, reg.UserID, "  Алиса ")
	require.NoError(t, err)
	assert.Equal(t, "Алиса", u.Name)
	_, err = f.svc.UpdateName(ctx, reg.UserID, "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	u, err = f.svc.SetRole(ctx, reg.UserID, "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	_, err = f.svc.SetRole(ctx, reg.UserID, "root")
	assert.ErrorIs(t, err, ErrInvalidRole)

	list, err := f.svc.ListUsers(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteUser(ctx, reg.UserID))
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, reg.UserID), ErrUserNotFound)
	_, err = f.svc.GetUser(ctx, reg.UserID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.SetRole(ctx, reg.UserID, "user")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

var _ oauth.Provider = (*stubProvider)(nil)

func TestFindUser(t *testing.T) {
	f := newFixture(t)
	reg, err := f.register(t, "a@x.com", "abc123")
	require.NoError(t, err)

	u, err := f.svc.FindUser(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, u.ID)
	u, err = f.svc.FindUser(context.Background(), reg.UserID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	_, err = f.svc.FindUser(context.Background(), "b@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

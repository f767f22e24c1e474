package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/config"
)

// -------- test fakes --------

type fakeAccounts struct {
	byEmail map[string]*account.Account

	verifCodes  map[string]string // accountID -> code
	resetTokens map[string]string

	createErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byEmail:     map[string]*account.Account{},
		verifCodes:  map[string]string{},
		resetTokens: map[string]string{},
	}
}

func (f *fakeAccounts) Create(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*account.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[email]; ok {
		return nil, account.ErrAlreadyExists
	}
	a := &account.Account{ID: "acct-" + email, Email: email, PasswordHash: passwordHash, Role: "USER"}
	f.byEmail[email] = a
	return a, nil
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	a, ok := f.byEmail[email]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	f.verifCodes[id] = code
	return nil
}

func (f *fakeAccounts) ConsumeVerificationCode(ctx context.Context, email, code string) error {
	a, ok := f.byEmail[email]
	if !ok || f.verifCodes[a.ID] != code {
		return account.ErrNotFound
	}
	delete(f.verifCodes, a.ID)
	a.EmailVerified = true
	return nil
}

func (f *fakeAccounts) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	f.resetTokens[id] = token
	return nil
}

func (f *fakeAccounts) ResetPassword(ctx context.Context, email, token, passwordHash string) error {
	a, ok := f.byEmail[email]
	if !ok || f.resetTokens[a.ID] != token {
		return account.ErrNotFound
	}
	delete(f.resetTokens, a.ID)
	a.PasswordHash = passwordHash
	return nil
}

type recordingMailer struct {
	verificationTo []string
	resetTo        []string
	lastCode       string
	lastToken      string
}

func (m *recordingMailer) SendVerificationCode(to, code string) error {
	m.verificationTo = append(m.verificationTo, to)
	m.lastCode = code
	return nil
}

func (m *recordingMailer) SendPasswordReset(to, token string) error {
	m.resetTo = append(m.resetTo, to)
	m.lastToken = token
	return nil
}

const testSecret = "test-secret"

func newTestService() (*Service, *fakeAccounts, *recordingMailer) {
	accounts := newFakeAccounts()
	mailer := &recordingMailer{}
	cfg := &config.Config{JWTSecret: testSecret}
	return NewService(accounts, mailer, cfg), accounts, mailer
}

// -------- tests --------

func TestRegister(t *testing.T) {
	svc, accounts, mailer := newTestService()

	token, a, err := svc.Register(context.Background(), "  Alice@Example.COM ", "hunter22", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", a.Email, "email must be normalized")
	assert.False(t, a.EmailVerified)
	require.Len(t, mailer.verificationTo, 1)
	assert.Equal(t, "alice@example.com", mailer.verificationTo[0])

	// Stored hash verifies the original password.
	stored := accounts.byEmail["alice@example.com"]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter22")))

	// The returned token carries the account as subject.
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, a.ID, claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, err := svc.Register(context.Background(), "alice@example.com", "hunter22", nil, nil)
	require.NoError(t, err)
	_, _, err = svc.Register(context.Background(), "alice@example.com", "other", nil, nil)
	require.ErrorIs(t, err, account.ErrAlreadyExists)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.Register(context.Background(), "alice@example.com", "hunter22", nil, nil)
	require.NoError(t, err)

	token, a, err := svc.Login(context.Background(), "ALICE@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice@example.com", a.Email)

	_, _, err = svc.Login(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown account yields the same error as a bad password.
	_, _, err = svc.Login(context.Background(), "ghost@example.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyEmail(t *testing.T) {
	svc, accounts, mailer := newTestService()
	_, a, err := svc.Register(context.Background(), "alice@example.com", "hunter22", nil, nil)
	require.NoError(t, err)

	err = svc.VerifyEmail(context.Background(), "alice@example.com", "nope")
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, accounts.byEmail[a.Email].EmailVerified)

	require.NoError(t, svc.VerifyEmail(context.Background(), "alice@example.com", mailer.lastCode))
	assert.True(t, accounts.byEmail[a.Email].EmailVerified)

	// The code is single-use.
	err = svc.VerifyEmail(context.Background(), "alice@example.com", mailer.lastCode)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestResendVerificationCode(t *testing.T) {
	svc, _, mailer := newTestService()
	_, _, err := svc.Register(context.Background(), "alice@example.com", "hunter22", nil, nil)
	require.NoError(t, err)
	first := mailer.lastCode

	require.NoError(t, svc.ResendVerificationCode(context.Background(), "alice@example.com"))
	assert.Len(t, mailer.verificationTo, 2)

	// The latest code wins.
	err = svc.VerifyEmail(context.Background(), "alice@example.com", first)
	if first != mailer.lastCode {
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	require.NoError(t, svc.VerifyEmail(context.Background(), "alice@example.com", mailer.lastCode))
}

func TestForgotPasswordUnknownEmailSilent(t *testing.T) {
	svc, _, mailer := newTestService()

	require.NoError(t, svc.ForgotPassword(context.Background(), "ghost@example.com"))
	assert.Empty(t, mailer.resetTo, "unknown emails must not trigger mail")
}

func TestResetPassword(t *testing.T) {
	svc, accounts, mailer := newTestService()
	_, _, err := svc.Register(context.Background(), "alice@example.com", "hunter22", nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))
	require.Len(t, mailer.resetTo, 1)

	err = svc.ResetPassword(context.Background(), "alice@example.com", "wrong", "newpassword")
	require.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, svc.ResetPassword(context.Background(), "alice@example.com", mailer.lastToken, "newpassword"))
	stored := accounts.byEmail["alice@example.com"]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword")))

	// Old password no longer works.
	_, _, err = svc.Login(context.Background(), "alice@example.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

// Package auth handles email/password authentication, email verification,
// and password reset.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/config"
	"github.com/cloudshare/service/internal/mail"
)

const (
	verificationCodeTTL = 24 * time.Hour
	resetTokenTTL       = 30 * time.Minute
	tokenTTL            = 30 * 24 * time.Hour
)

// ErrInvalidCredentials is returned when the email or password is wrong. The
// two cases are never distinguished.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidCode is returned when a verification code or reset token does not
// match or has expired.
var ErrInvalidCode = errors.New("invalid or expired code")

// Accounts is the account surface the auth flow needs. Satisfied by
// *account.Repository.
type Accounts interface {
	Create(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*account.Account, error)
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	ConsumeVerificationCode(ctx context.Context, email, code string) error
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, email, token, passwordHash string) error
}

// Service contains the business logic for authentication.
type Service struct {
	accounts Accounts
	mailer   mail.Mailer
	cfg      *config.Config
}

// NewService creates a new auth Service.
func NewService(accounts Accounts, mailer mail.Mailer, cfg *config.Config) *Service {
	return &Service{accounts: accounts, mailer: mailer, cfg: cfg}
}

// Register creates a new account, emails a verification code valid for 24
// hours, and returns a signed JWT. The account starts unverified and cannot
// upload until verification completes.
func (s *Service) Register(ctx context.Context, email, password string, firstName, lastName *string) (string, *account.Account, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	a, err := s.accounts.Create(ctx, email, string(hash), firstName, lastName)
	if err != nil {
		return "", nil, err
	}

	if err := s.sendVerificationCode(ctx, a); err != nil {
		// Registration stands; the code can be resent.
		log.Printf("auth: sending verification code to %s failed: %v", email, err)
	}

	token, err := s.issueToken(a)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, a, nil
}

// Login verifies the password and returns a signed JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, *account.Account, error) {
	a, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, account.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(a)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, a, nil
}

// VerifyEmail marks the account verified when the code matches and has not
// expired.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	err := s.accounts.ConsumeVerificationCode(ctx, normalizeEmail(email), strings.ToLower(strings.TrimSpace(code)))
	if errors.Is(err, account.ErrNotFound) {
		return ErrInvalidCode
	}
	return err
}

// ResendVerificationCode issues and emails a fresh verification code.
func (s *Service) ResendVerificationCode(ctx context.Context, email string) error {
	a, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	return s.sendVerificationCode(ctx, a)
}

// IsEmailVerified reports whether the account's email has been verified.
func (s *Service) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	a, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, err
	}
	return a.EmailVerified, nil
}

// ForgotPassword issues a reset token valid for 30 minutes and emails it.
// Unknown emails are ignored so the endpoint cannot be used to probe accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	a, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token := shortCode()
	if err := s.accounts.SetResetToken(ctx, a.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.mailer.SendPasswordReset(a.Email, token); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword replaces the password when the reset token matches and has
// not expired, consuming the token.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.accounts.ResetPassword(ctx, normalizeEmail(email), strings.ToLower(strings.TrimSpace(token)), string(hash))
	if errors.Is(err, account.ErrNotFound) {
		return ErrInvalidCode
	}
	return err
}

func (s *Service) sendVerificationCode(ctx context.Context, a *account.Account) error {
	code := shortCode()
	if err := s.accounts.SetVerificationCode(ctx, a.ID, code, time.Now().Add(verificationCodeTTL)); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	return s.mailer.SendVerificationCode(a.Email, code)
}

// issueToken creates a signed JWT for the given account.
func (s *Service) issueToken(a *account.Account) (string, error) {
	claims := jwt.MapClaims{
		"sub":   a.ID,
		"email": a.Email,
		"role":  a.Role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// shortCode generates a 6-character lowercase hex code for verification and
// reset flows.
func shortCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

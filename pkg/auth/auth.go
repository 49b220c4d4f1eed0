// Package auth signs accounts up, in and out, issuing opaque session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"

	// MinPasswordLength matches the hosted backend the accounts were first created on
	MinPasswordLength = 6
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password alike
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", gateway.ErrAuthenticationRequired)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Store is the persistence auth needs
type Store interface {
	CreateAccount(ctx context.Context, account model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	CreateSession(ctx context.Context, token string, account model.Identity, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
}

// Session is an issued session token
type Session struct {
	Token     string
	Identity  model.Identity
	Email     string
	ExpiresAt time.Time
}

// Service issues and revokes sessions
type Service struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, ttl: ttl, logger: logger, now: time.Now}
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func checkCredentials(email, password string) error {
	if err := validate.Struct(credentials{Email: email, Password: password}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Email":
				return fmt.Errorf("%w: a valid email is required", gateway.ErrInvalidInput)
			case "Password":
				return fmt.Errorf("%w: password must be at least %d characters", gateway.ErrInvalidInput, MinPasswordLength)
			}
		}
		return fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err)
	}
	return nil
}

// SignUp creates a password account and signs it in.
// The confirmation must match the password.
func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (Session, error) {
	email = normaliseEmail(email)
	if err := checkCredentials(email, password); err != nil {
		return Session{}, err
	}
	if password != confirm {
		return Session{}, fmt.Errorf("%w: passwords do not match", gateway.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := model.Account{
		ID:           model.Identity(uuid.New().String()),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return Session{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Debug("Account created", zap.String("account_id", string(account.ID)))
	return s.issue(ctx, account)
}

// Login checks an email and password and opens a session
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normaliseEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", gateway.ErrInvalidInput)
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("failed to look up account: %w", err)
	}

	if account.PasswordHash == "" {
		s.logger.Debug("Password login attempted on provider account", zap.String("provider", account.Provider))
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(ctx, account)
}

// LoginWithProvider opens a session for an email already verified by an
// external provider, creating the account on first use
func (s *Service) LoginWithProvider(ctx context.Context, email, provider string) (Session, error) {
	email = normaliseEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return Session{}, fmt.Errorf("%w: provider returned no usable email", gateway.ErrInvalidInput)
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrNotFound):
		account = model.Account{
			ID:       model.Identity(uuid.New().String()),
			Email:    email,
			Provider: provider,
		}
		if err := s.store.CreateAccount(ctx, account); err != nil {
			return Session{}, fmt.Errorf("failed to create account: %w", err)
		}
		s.logger.Debug("Account created", zap.String("account_id", string(account.ID)), zap.String("provider", provider))
	default:
		return Session{}, fmt.Errorf("failed to look up account: %w", err)
	}

	return s.issue(ctx, account)
}

// Logout revokes a session. An empty token is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *Service) issue(ctx context.Context, account model.Account) (Session, error) {
	session := Session{
		Token:     uuid.New().String(),
		Identity:  account.ID,
		Email:     account.Email,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.store.CreateSession(ctx, session.Token, session.Identity, session.ExpiresAt); err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}

	s.logger.Debug("Session started", zap.String("account_id", string(account.ID)), zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/retry"
	"github.com/utafrali/roastery/pkg/validator"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

const (
	defaultResetTTL = 30 * time.Minute
	resetTokenBytes = 32
)

// TokenIssuer signs access tokens. Implemented by auth.JWTManager.
type TokenIssuer interface {
	GenerateAccessToken(userID, email, role string) (string, time.Time, error)
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	FirstName            string `json:"first_name" validate:"required,max=100"`
	LastName             string `json:"last_name" validate:"required,max=100"`
}

// LoginInput is the sign-in form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput replaces the editable profile fields.
type UpdateProfileInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	Address   string `json:"address" validate:"max=255"`
	City      string `json:"city" validate:"max=100"`
	Region    string `json:"region" validate:"max=100"`
	ZipCode   string `json:"zip_code" validate:"max=20"`
}

// ForgotPasswordInput asks for a reset token to be sent to email.
type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordInput sets a new password with a reset token.
type ResetPasswordInput struct {
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// PasswordResetNotifier delivers reset tokens to their owners. Implemented
// by event.Producer.
type PasswordResetNotifier interface {
	PublishPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error
}

// PasswordResetConfig wires password recovery.
type PasswordResetConfig struct {
	Store    repository.PasswordResetStore
	Notifier PasswordResetNotifier
	TTL      time.Duration
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// AuthService manages accounts, sign-in and profiles.
type AuthService struct {
	users   repository.UserRepository
	tokens  TokenIssuer
	profile retry.Config
	reset   PasswordResetConfig
	logger  *slog.Logger
}

// NewAuthService creates an auth service. profile controls how long a
// freshly written profile is waited for.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, profile retry.Config, reset PasswordResetConfig, logger *slog.Logger) *AuthService {
	if reset.TTL <= 0 {
		reset.TTL = defaultResetTTL
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		profile: profile,
		reset:   reset,
		logger:  logger,
	}
}

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, persistenceError("create account", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Login checks the credentials and returns a fresh access token. Unknown
// emails and wrong passwords get the same answer.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Profile loads the user's profile. A profile that is not visible yet, as
// right after sign-up, is polled for a few times before giving up.
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	cfg := s.profile
	cfg.OnRetry = func(attempt int, err error) {
		attrs := []any{slog.Int("attempt", attempt), slog.String("user_id", userID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.DebugContext(ctx, "profile not visible yet, retrying", attrs...)
	}

	var failed bool
	user, err := retry.Value(ctx, cfg, func(ctx context.Context) (*domain.User, bool, error) {
		u, err := s.users.GetByID(ctx, userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			failed = false
			return nil, false, nil
		}
		if err != nil {
			failed = true
			return nil, false, err
		}
		return u, true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) && !failed {
			return nil, apperrors.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return user, nil
}

// UpdateProfile overwrites the editable fields of the profile.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.Phone = strings.TrimSpace(in.Phone)
	user.Address = strings.TrimSpace(in.Address)
	user.City = strings.TrimSpace(in.City)
	user.Region = strings.TrimSpace(in.Region)
	user.ZipCode = strings.TrimSpace(in.ZipCode)
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, persistenceError("update profile", err)
	}

	s.logger.InfoContext(ctx, "profile updated", slog.String("user_id", userID))
	return user, nil
}

// ForgotPassword issues a single-use reset token for the account behind
// in.Email and hands it to the notifier. Unknown emails get the same nil
// answer, so the caller cannot tell which emails have accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validator.Validate(in); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("get user by email: %w", err)
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(s.reset.TTL)
	if err := s.reset.Store.Save(ctx, token, user.ID, s.reset.TTL); err != nil {
		return persistenceError("save reset token", err)
	}

	if err := s.reset.Notifier.PublishPasswordReset(ctx, user, token, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword consumes a reset token and stores the new password. A token
// works once; unknown, used and expired tokens are rejected alike.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Token = strings.TrimSpace(in.Token)
	if err := validator.Validate(in); err != nil {
		return err
	}

	userID, err := s.reset.Store.Consume(ctx, in.Token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("invalid or expired reset token")
		}
		return persistenceError("consume reset token", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("invalid or expired reset token")
		}
		return persistenceError("update password", err)
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", userID))
	return nil
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &AuthResult{User: user, AccessToken: token, ExpiresAt: expiresAt}, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

const resetTokenTTL = 2 * time.Hour

// Mailer sends transactional mail. The jobs client satisfies it so mail goes
// through the background queue instead of blocking the request.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	redis  *redis.Client
	mailer Mailer
}

// NewService constructs a new Service.
func NewService(repo Repository, redisClient *redis.Client, mailer Mailer) *Service {
	return &Service{repo: repo, redis: redisClient, mailer: mailer}
}

// SignUp registers a new account.
func (s *Service) SignUp(ctx context.Context, email, fullName, password string) (*User, error) {
	fields := shared.FieldErrors{}
	if email == "" {
		fields["email"] = "email is required"
	}
	if len(password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, email, fullName, string(hash))
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// CurrentUser loads the account for an authenticated session.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RequestPasswordReset issues a reset token and mails it to the account.
// An unknown email is not an error; nothing is revealed to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, resetKey(token), user.ID, resetTokenTTL).Err(); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	body := fmt.Sprintf("A password reset was requested for your account.\nReset token: %s\nThe token expires in %s.", token, resetTokenTTL)
	if err := s.mailer.SendMail(ctx, user.Email, "Password reset", body); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return shared.FieldErrors{"password": "password must be at least 8 characters"}
	}

	userID, err := s.redis.Get(ctx, resetKey(token)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: reset token expired or unknown", shared.ErrNotFound)
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return s.redis.Del(ctx, resetKey(token)).Err()
}

func resetKey(token string) string {
	return "pwreset:" + token
}

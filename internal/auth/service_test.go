package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ironstone-erp/ironstone-erp/internal/auth"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
	_ "github.com/ironstone-erp/ironstone-erp/testing"
)

type stubRepo struct {
	users  map[int64]*auth.User
	nextID int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[int64]*auth.User), nextID: 1}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) EmailByID(ctx context.Context, id int64) (string, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, fullName, passwordHash string) (int64, error) {
	id := s.nextID
	s.nextID++
	s.users[id] = &auth.User{ID: id, Email: email, FullName: fullName, PasswordHash: passwordHash, IsActive: true}
	return id, nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

type stubMailer struct {
	to      string
	subject string
	body    string
	err     error
}

func (m *stubMailer) SendMail(ctx context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func newAuthService(t *testing.T) (*auth.Service, *stubRepo, *stubMailer) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newStubRepo()
	mailer := &stubMailer{}
	return auth.NewService(repo, redisClient, mailer), repo, mailer
}

func TestSignUpAndAuthenticate(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "piet@ironstone.co.za", "Piet Botha", "longenough")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.PasswordHash == "longenough" {
		t.Fatal("password stored in plain text")
	}

	got, err := svc.Authenticate(ctx, "piet@ironstone.co.za", "longenough")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, got.ID)
	}

	if _, err := svc.Authenticate(ctx, "piet@ironstone.co.za", "wrongpass"); !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, err := svc.SignUp(context.Background(), "", "No Email", "short")
	var fields shared.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if fields["email"] == "" || fields["password"] == "" {
		t.Fatalf("expected email and password errors, got %v", fields)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	svc, repo, _ := newAuthService(t)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.MinCost)
	id, _ := repo.CreateUser(ctx, "dormant@ironstone.co.za", "Dormant", string(hash))
	repo.users[id].IsActive = false

	if _, err := svc.Authenticate(ctx, "dormant@ironstone.co.za", "longenough"); !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, mailer := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "sannie@ironstone.co.za", "Sannie", "oldpassword"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := svc.RequestPasswordReset(ctx, "sannie@ironstone.co.za"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if mailer.to != "sannie@ironstone.co.za" {
		t.Fatalf("expected mail to user, got %q", mailer.to)
	}

	// Pull the token out of the mail body.
	var token string
	for _, line := range strings.Split(mailer.body, "\n") {
		if after, ok := strings.CutPrefix(line, "Reset token: "); ok {
			token = after
		}
	}
	if token == "" {
		t.Fatalf("no token in mail body: %q", mailer.body)
	}

	if err := svc.ResetPassword(ctx, token, "brandnewpass"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "sannie@ironstone.co.za", "brandnewpass"); err != nil {
		t.Fatalf("authenticate after reset: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "sannie@ironstone.co.za", "oldpassword"); err == nil {
		t.Fatal("old password still accepted")
	}

	// Token is single use.
	if err := svc.ResetPassword(ctx, token, "anotherpass1"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found for consumed token, got %v", err)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc, _, mailer := newAuthService(t)

	if err := svc.RequestPasswordReset(context.Background(), "nobody@ironstone.co.za"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	if mailer.to != "" {
		t.Fatalf("no mail should be sent, got %q", mailer.to)
	}
}

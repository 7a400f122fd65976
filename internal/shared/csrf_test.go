package shared_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

func newTestSession(t *testing.T) *shared.Session {
	t.Helper()
	sm := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return sess
}

func TestCSRFTokenStableWithinSession(t *testing.T) {
	m := shared.NewCSRFManager("secret")
	sess := newTestSession(t)
	ctx := context.Background()

	first, err := m.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	second, err := m.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure token again: %v", err)
	}
	if first != second {
		t.Fatalf("token changed within session: %q vs %q", first, second)
	}

	if err := m.VerifyToken(ctx, sess, first); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCSRFTokenMismatch(t *testing.T) {
	m := shared.NewCSRFManager("secret")
	sess := newTestSession(t)
	ctx := context.Background()

	if _, err := m.EnsureToken(ctx, sess); err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if err := m.VerifyToken(ctx, sess, "forged"); !errors.Is(err, shared.ErrCSRFTokenMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestCSRFTokenMissing(t *testing.T) {
	m := shared.NewCSRFManager("secret")
	sess := newTestSession(t)

	if err := m.VerifyToken(context.Background(), sess, ""); !errors.Is(err, shared.ErrCSRFTokenMissing) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

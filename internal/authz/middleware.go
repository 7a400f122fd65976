package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ironstone-erp/ironstone-erp/internal/platform/httpx"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

type scopeContextKey struct{}

// ContextWithScope stores the resolved scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the resolved scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}

// UserDirectory looks up account details needed for scope resolution.
type UserDirectory interface {
	EmailByID(ctx context.Context, id int64) (string, error)
}

// Middleware wires scope resolution into the request pipeline.
type Middleware struct {
	Resolver *Resolver
	Users    UserDirectory
	Logger   *slog.Logger
}

// RequireUser rejects requests without an authenticated session, resolves the
// caller's scope and injects it into the request context.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil || userID <= 0 {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}

		email, err := m.Users.EmailByID(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz lookup user", slog.Any("error", err), slog.Int64("user_id", userID))
			}
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}

		scope, err := m.Resolver.Resolve(r.Context(), userID, email)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz resolve scope", slog.Any("error", err), slog.Int64("user_id", userID))
			}
			httpx.RespondError(w, shared.ErrStoreUnavailable)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), scope)))
	})
}

// RequireAdmin allows only administrative scopes through.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := ScopeFromContext(r.Context())
		if !ok || !scope.Admin {
			httpx.RespondError(w, shared.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package authz resolves which records the current user may see.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope is the resolved visibility of a user: administrators see every
// record, everyone else only records tied to a single customer.
type Scope struct {
	UserID     int64
	Admin      bool
	CustomerID int64 // 0 when no customer binding was found
}

// Scoped reports whether the scope restricts visibility to one customer.
func (s Scope) Scoped() bool {
	return !s.Admin && s.CustomerID > 0
}

// Resolver maps an authenticated identity to a Scope using a three-tier
// fallback chain: profile record, email-domain match, direct email match.
// The chain is best-effort convenience, not a security boundary; the store's
// row policies remain authoritative.
type Resolver struct {
	pool *pgxpool.Pool
}

// NewResolver constructs a Resolver.
func NewResolver(pool *pgxpool.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// Resolve determines the scope for the given user.
func (r *Resolver) Resolve(ctx context.Context, userID int64, email string) (Scope, error) {
	scope := Scope{UserID: userID}

	var role string
	var customerID *int64
	err := r.pool.QueryRow(ctx, `SELECT role, customer_id FROM profiles WHERE user_id = $1`, userID).Scan(&role, &customerID)
	switch {
	case err == nil:
		if strings.EqualFold(role, "admin") {
			scope.Admin = true
			return scope, nil
		}
		if customerID != nil && *customerID > 0 {
			scope.CustomerID = *customerID
			return scope, nil
		}
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to email tiers
	default:
		return Scope{}, fmt.Errorf("authz: load profile: %w", err)
	}

	domain := emailDomain(email)
	if domain != "" {
		var id int64
		err := r.pool.QueryRow(ctx, `SELECT id FROM customers WHERE split_part(lower(email), '@', 2) = $1 ORDER BY id LIMIT 1`, domain).Scan(&id)
		if err == nil {
			scope.CustomerID = id
			return scope, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Scope{}, fmt.Errorf("authz: domain match: %w", err)
		}
	}

	var id int64
	err = r.pool.QueryRow(ctx, `SELECT id FROM customers WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`, email).Scan(&id)
	if err == nil {
		scope.CustomerID = id
		return scope, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Scope{}, fmt.Errorf("authz: email match: %w", err)
	}

	// No binding at all: an authenticated user with no visible records.
	return scope, nil
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

package shared

import (
	"errors"
	"sort"
	"strings"
)

// Error taxonomy for all operations. Every failure surfaced to a caller wraps
// one of these sentinels so the HTTP boundary can map it to a status code.
var (
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation attempted from the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrPermissionDenied indicates the store rejected the caller's authorization.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable indicates a generic network or backend failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// FieldErrors carries per-field validation messages. It satisfies error and
// matches ErrValidation under errors.Is, so a handler can surface the map
// while services keep returning plain errors.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fe[k])
	}
	return b.String()
}

func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}

// UserSafeMessage returns a message suitable for display to end users,
// stripping internal detail from unexpected errors.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrInvalidCredentials):
		return err.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return "the data store is temporarily unavailable, please retry"
	default:
		return "an unexpected error occurred"
	}
}

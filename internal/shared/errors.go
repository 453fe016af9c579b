package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// safeErrors are business errors whose text may be shown to end users verbatim.
var safeErrors = []error{
	ErrNotFound,
	ErrInvalidCredentials,
	ErrCSRFTokenMissing,
	ErrCSRFTokenMismatch,
	ErrIdempotencyConflict,
}

// UserSafeError marks an error as safe to display to end users.
type UserSafeError struct {
	Err error
}

func (e UserSafeError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped error for errors.Is/As.
func (e UserSafeError) Unwrap() error { return e.Err }

// Safe wraps err so its message is surfaced to users as-is.
func Safe(err error) error {
	if err == nil {
		return nil
	}
	return UserSafeError{Err: err}
}

// UserSafeMessage returns a message suitable for end users. Unknown errors
// collapse to a generic message so internals never leak.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe UserSafeError
	if errors.As(err, &safe) {
		return safe.Err.Error()
	}
	for _, known := range safeErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Something went wrong"
}

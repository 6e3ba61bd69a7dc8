package auth

import "errors"

// Failures surfaced by Service. Callers match them with errors.Is; the
// wrapped text is safe to show to clients except for ErrInternal, whose
// cause is only logged.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal server error")
)

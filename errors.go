package cheat_report

import (
	"errors"
	"fmt"

	"github.com/r4g3baby/cheat-report/database"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotApproved        = errors.New("account is not approved")
	ErrNotAdmin           = errors.New("account is not an admin")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUploadFailure      = errors.New("evidence upload failed")

	ErrMissingToken     = errors.New("token is required")
	ErrBindTokenMissing = errors.New("bind token missing or expired")
	ErrInvalidBindToken = errors.New("invalid bind token")
	ErrAccountNotFound  = errors.New("account not found")
	ErrIdentityFailed   = errors.New("third-party authentication failed")

	ErrNotFound        = database.ErrNotFound
	ErrAlreadyApproved = database.ErrAlreadyApproved
	ErrUsernameTaken   = database.ErrUsernameTaken
	ErrIdentityTaken   = database.ErrIdentityTaken
)

// ValidationError describes input rejected before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", err.Field, err.Reason)
}

func (err *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

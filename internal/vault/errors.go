package vault

import (
	"errors"
	"fmt"
)

var (
	ErrPathEscape      = errors.New("path escapes memory folder")
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("already exists")
	ErrProtected       = errors.New("protected file")
	ErrInvalidCategory = errors.New("invalid category")
	ErrTooLarge        = errors.New("content too large")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmpty           = errors.New("empty content")
)

// vaultError carries a message meant for the model plus a sentinel for
// errors.Is.
type vaultError struct {
	msg  string
	kind error
}

func (e *vaultError) Error() string { return e.msg }
func (e *vaultError) Unwrap() error { return e.kind }

func errorf(kind error, format string, args ...any) error {
	return &vaultError{msg: fmt.Sprintf(format, args...), kind: kind}
}

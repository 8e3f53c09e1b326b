package sharing

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure returned by the store wraps one of these
// sentinels so callers can map them to transport status codes with errors.Is.
var (
	// ErrNotFound means a referenced entity, type, permission or parent is absent
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a duplicate registration was attempted
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument means owner-permission misuse or a malformed request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInternal means a storage failure
	ErrInternal = errors.New("internal error")
)

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func alreadyExistsf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrAlreadyExists)...)
}

func invalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

func internalf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}

// Package service holds what the engine's service packages share.
package service

import "chairbook/backend/internal/store"

// ValidationError reports a malformed request. It matches store.ErrInvalidRequest under errors.Is.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Is(target error) bool {
	return target == store.ErrInvalidRequest
}

func Invalid(msg string) error {
	return &ValidationError{msg: msg}
}

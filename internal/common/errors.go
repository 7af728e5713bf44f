// Package common defines shared constants and sentinel errors used across
// the repository, service and transport layers. Callers should use errors.Is
// to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Access-control errors.
	ErrNotOwner  = errors.New("not owner")
	ErrForbidden = errors.New("forbidden")
	// ErrAuthRequired is ErrForbidden raised for an anonymous requester.
	ErrAuthRequired = fmt.Errorf("authentication required: %w", ErrForbidden)

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

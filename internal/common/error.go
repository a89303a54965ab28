// Package common defines shared constants and sentinel errors used across
// the coursekeeper server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Input-shape errors, rejected before any storage access.
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidCode     = errors.New("invalid verification code format")
	ErrInvalidPurpose  = errors.New("invalid verification code purpose")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidPassword = errors.New("password does not satisfy policy")

	// Verification outcomes.
	ErrRateLimited  = errors.New("verification code requested too often")
	ErrNoValidCode  = errors.New("no valid verification code")
	ErrCodeMismatch = errors.New("verification code mismatch")

	// Infrastructure faults.
	ErrStorage         = errors.New("storage error")
	ErrDeliveryFailure = errors.New("sms delivery failed")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token errors.
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("malformed token")
)

// Package api is the transport-neutral inbound boundary. Every operation
// returns a Result carrying a status code, a human readable message and an
// optional payload. Results never contain passwords, hashes or codes.
package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
)

// Result is the uniform response envelope. Code follows HTTP status
// semantics so transports can map it directly.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK reports whether r is a success.
func (r *Result) OK() bool { return r.Code == http.StatusOK }

func ok(message string, data any) *Result {
	return &Result{Code: http.StatusOK, Message: message, Data: data}
}

func fail(code int, message string) *Result {
	return &Result{Code: code, Message: message}
}

// failure maps err to a Result. Messages are fixed per error kind so that
// wrapped driver or gateway text never reaches a client.
func failure(err error) *Result {
	switch {
	case errors.Is(err, common.ErrInvalidPhone):
		return fail(http.StatusBadRequest, "Invalid phone number")
	case errors.Is(err, common.ErrInvalidCode):
		return fail(http.StatusBadRequest, "Verification code must be 6 digits")
	case errors.Is(err, common.ErrInvalidPurpose):
		return fail(http.StatusBadRequest, "Invalid verification code type")
	case errors.Is(err, common.ErrInvalidRole):
		return fail(http.StatusBadRequest, "Invalid role")
	case errors.Is(err, common.ErrInvalidPassword):
		return fail(http.StatusBadRequest, "Password must be 6 to 72 characters")
	case errors.Is(err, common.ErrNoValidCode), errors.Is(err, common.ErrCodeMismatch):
		return fail(http.StatusBadRequest, "Verification code is invalid or expired")
	case errors.Is(err, common.ErrAlreadyExists):
		return fail(http.StatusBadRequest, "Phone number is already registered")
	case errors.Is(err, common.ErrRateLimited):
		return fail(http.StatusTooManyRequests, "Verification code requested too often, try again later")
	case errors.Is(err, common.ErrInvalidCredentials):
		return fail(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenMalformed):
		return fail(http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, common.ErrorForbidden):
		return fail(http.StatusForbidden, "Permission denied")
	case errors.Is(err, common.ErrorNotFound):
		return fail(http.StatusNotFound, "User not found")
	case errors.Is(err, common.ErrDeliveryFailure):
		return fail(http.StatusBadGateway, "Failed to send verification code")
	default:
		return fail(http.StatusInternalServerError, "Internal server error")
	}
}

package models

import "time"

// Purpose scopes a verification code to one flow.
type Purpose string

const (
	PurposeRegister      Purpose = "REGISTER"
	PurposeLogin         Purpose = "LOGIN"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposeLogin, PurposeResetPassword:
		return true
	}
	return false
}

// VerificationCode is a one-time code sent by SMS. Used only ever goes
// from false to true.
type VerificationCode struct {
	ID          int64
	PhoneNumber string
	Code        string
	Purpose     Purpose
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
}

// IsValid reports whether the code can still be redeemed at now.
func (c *VerificationCode) IsValid(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

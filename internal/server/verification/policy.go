// Package verification holds the code generator and the send/verify policy:
// phone and code shape checks, resend cooldown and code lifetime.
package verification

import (
	"regexp"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
)

const (
	// CodeLength is the number of digits in every verification code.
	CodeLength = 6

	// DefaultTTL is how long a code stays redeemable after creation.
	DefaultTTL = 5 * time.Minute

	// DefaultCooldown is the minimum gap between two sends for the same
	// (phone, purpose).
	DefaultCooldown = 60 * time.Second
)

// Mainland mobile numbers: 11 digits, leading 1, second digit 3-9.
var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// Policy bundles the timing rules. The zero value is not useful; use
// DefaultPolicy or fill both fields.
type Policy struct {
	TTL      time.Duration
	Cooldown time.Duration
}

// DefaultPolicy returns the 5 minute lifetime / 60 second cooldown policy.
func DefaultPolicy() Policy {
	return Policy{TTL: DefaultTTL, Cooldown: DefaultCooldown}
}

// ExpiresAt is the instant a code created at createdAt stops being valid.
func (p Policy) ExpiresAt(createdAt time.Time) time.Time {
	return createdAt.Add(p.TTL)
}

// IsRateLimited reports whether a new send must be refused because latest
// (the newest code for the same phone and purpose, used or not) was created
// less than Cooldown before now. A nil latest never limits.
func (p Policy) IsRateLimited(latest *models.VerificationCode, now time.Time) bool {
	if latest == nil || latest.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(latest.CreatedAt) < p.Cooldown
}

// GenerateCode returns a uniformly random, zero-padded CodeLength-digit code.
func GenerateCode() (string, error) {
	return common.RandomDigits(CodeLength)
}

// ValidatePhone returns common.ErrInvalidPhone unless phone is a mainland
// mobile number.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return common.ErrInvalidPhone
	}
	return nil
}

// ValidateCode returns common.ErrInvalidCode unless code is exactly
// CodeLength ASCII digits.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return common.ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return common.ErrInvalidCode
		}
	}
	return nil
}

// ParsePurpose maps the wire value to a Purpose. An empty value means
// LOGIN; anything unknown yields common.ErrInvalidPurpose.
func ParsePurpose(s string) (models.Purpose, error) {
	if s == "" {
		return models.PurposeLogin, nil
	}
	p := models.Purpose(s)
	if !p.Valid() {
		return "", common.ErrInvalidPurpose
	}
	return p, nil
}

// Package sms delivers verification codes. One Provider is selected at
// startup by NewProvider and shared by every request for the lifetime of
// the process.
package sms

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Provider sends a verification code to a phone number.
//
// SendVerificationCode reports delivery success. It must not retry, and
// network-backed implementations must never log the code itself.
type Provider interface {
	SendVerificationCode(ctx context.Context, phone, code string) bool
	Name() string
}

// maskPhone keeps the first three and last four digits of a phone number.
func maskPhone(phone string) string {
	if len(phone) < 8 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
}

// transportError strips the request URL from a client error. Signed query
// strings carry template parameters, so the URL must stay out of logs.
func transportError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

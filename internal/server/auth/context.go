package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
)

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFromContext returns the session stored by WithSession, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// TokenErrorMessage is the client-facing text for an error from
// Issuer.Validate.
func TokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, common.ErrInvalidSignature):
		return "invalid token signature"
	default:
		return "malformed token"
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Anything else yields "".
func BearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Package auth mints and validates session tokens and hashes passwords.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload: registered claims plus the subject's role.
// The user id travels in the standard "sub" claim.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// Session is what a valid token asserts.
type Session struct {
	UserID    string
	Role      models.Role
	ExpiresAt time.Time
}

// Issuer signs HS256 tokens with a process-wide secret. It holds no
// per-token state.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewIssuer returns an Issuer whose tokens live for validity.
func NewIssuer(secret []byte, validity time.Duration) *Issuer {
	return &Issuer{secret: secret, validity: validity, now: time.Now}
}

// Validity is the lifetime given to freshly issued tokens.
func (i *Issuer) Validity() time.Duration { return i.validity }

// Issue produces a signed token for userID and role.
func (i *Issuer) Issue(userID string, role models.Role) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		Role: role,
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// Validate checks the signature and expiry of tokenString. It returns
// common.ErrInvalidSignature, common.ErrTokenExpired or
// common.ErrTokenMalformed on failure.
func (i *Issuer) Validate(tokenString string) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && signatureCorrupt(tokenString) {
			return nil, common.ErrInvalidSignature
		}
		return nil, classify(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrTokenMalformed
	}

	return &Session{UserID: claims.Subject, Role: claims.Role, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrInvalidSignature
	default:
		return common.ErrTokenMalformed
	}
}

// signatureCorrupt reports whether header and payload decode strictly but
// the signature segment does not, i.e. only the signature was altered.
func signatureCorrupt(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding.Strict()
	for _, seg := range parts[:2] {
		if _, err := enc.DecodeString(seg); err != nil {
			return false
		}
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}

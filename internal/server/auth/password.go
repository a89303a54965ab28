package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is a seam so tests can hash cheaply.
var bcryptCost = bcrypt.DefaultCost

// HashPassword returns a salted one-way bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

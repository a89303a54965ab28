package common

import (
	"crypto/rand"
	"math/big"
)

var digitsMax = big.NewInt(10)

// RandomDigits returns a string of n decimal digits drawn uniformly from
// crypto/rand. Leading zeros are kept, so the result always has length n.
func RandomDigits(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, digitsMax)
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}

// WipeByteArray zeroes b in place. Safe on nil.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

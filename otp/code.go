package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	MinLength = 4
	MaxLength = 10
)

var randReader io.Reader = rand.Reader

// NewCode returns a zero-padded code of length digits drawn uniformly from
// [0, 10^length). rand.Int rejects out-of-range samples, so there is no modulo bias.
func NewCode(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", errors.New("invalid otp length")
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(randReader, max)
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%0*d", length, n)
	if len(code) != length {
		return "", errors.New("invalid otp generation length")
	}
	return code, nil
}

// HashCode returns hex(sha256(code || secret)).
func HashCode(code string, secret []byte) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}

// matchHash compares a submitted code against a stored hash in constant time.
// A length mismatch is a plain failure.
func matchHash(code string, secret []byte, stored string) bool {
	provided := HashCode(code, secret)
	if len(provided) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}

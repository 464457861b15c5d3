package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// TokenBytes is the entropy of a refresh token before hex encoding.
const TokenBytes = 64

// ErrMalformed is returned by Parse for strings that cannot be refresh tokens.
var ErrMalformed = errors.New("malformed refresh token")

var randReader io.Reader = rand.Reader

// New returns a fresh plaintext refresh token and its storage hash.
func New() (token string, hash string, err error) {
	var raw [TokenBytes]byte
	if _, err := io.ReadFull(randReader, raw[:]); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(raw[:])
	return token, Hash(token), nil
}

// Hash returns the hex SHA-256 digest stored in place of the plaintext token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Parse performs a structural check on a presented token without touching storage.
func Parse(token string) (string, error) {
	if len(token) != TokenBytes*2 {
		return "", ErrMalformed
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", ErrMalformed
	}
	return token, nil
}

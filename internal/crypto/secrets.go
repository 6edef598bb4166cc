// Package crypto produces server-side secrets: sending tokens, verification
// codes and their Argon2id hashes.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Codes are short-lived, so cost is lower than for passwords.
const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 32 * 1024 // 32 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// TokenBytes is the entropy of a sending token.
const TokenBytes = 24

// CodeDigits is the length of an email verification code.
const CodeDigits = 6

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewToken returns a random URL-safe sending token.
func NewToken() (string, error) {
	b, err := RandBytes(TokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var codeMax = big.NewInt(1_000_000)

// NewVerificationCode returns a uniformly distributed 6-digit numeric code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// HashCode returns the Argon2id hash of code using the provided salt.
func HashCode(code, salt []byte) []byte {
	return argon2.IDKey(code, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyCode verifies code against expected Argon2id hash and salt.
func VerifyCode(code, salt, expected []byte) bool {
	got := HashCode(code, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

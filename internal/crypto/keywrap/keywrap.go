// Package keywrap protects secrets at rest under a passphrase:
// an Argon2id-derived KEK seals the secret with XChaCha20-Poly1305.
package keywrap

import (
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/whisperchain/whisperchain/internal/crypto"
)

// Prefix marks wrapped values so they can be told apart from plain base64 keys.
const Prefix = "wcwrap1:"

// Params
const (
	KEKLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrBadPassphrase is returned when the wrapped value cannot be opened.
var ErrBadPassphrase = errors.New("keywrap: wrong passphrase or corrupted value")

// DeriveKEK derives a KEK from passphrase and salt using Argon2id.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KEKLen)
}

// IsWrapped reports whether s carries the wrap prefix.
func IsWrapped(s string) bool { return strings.HasPrefix(s, Prefix) }

// Wrap seals secret and returns Prefix + base64(salt || nonce || ciphertext).
func Wrap(passphrase, secret []byte) (string, error) {
	if len(passphrase) == 0 {
		return "", errors.New("keywrap: empty passphrase")
	}
	salt, err := crypto.RandBytes(SaltLen)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(DeriveKEK(passphrase, salt))
	if err != nil {
		return "", err
	}
	nonce, err := crypto.RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, SaltLen+len(nonce)+len(secret)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, secret, salt)...)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Unwrap opens a value produced by Wrap.
func Unwrap(passphrase []byte, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(wrapped), Prefix))
	if err != nil {
		return nil, ErrBadPassphrase
	}
	if len(raw) < SaltLen+chacha20poly1305.NonceSizeX {
		return nil, errors.New("keywrap: wrapped too short")
	}
	salt := raw[:SaltLen]
	nonce := raw[SaltLen : SaltLen+chacha20poly1305.NonceSizeX]
	ct := raw[SaltLen+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(DeriveKEK(passphrase, salt))
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce, ct, salt)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return out, nil
}

// Package chunked implements the RSA-OAEP(SHA-256) envelope used for every message
// ciphertext: payloads longer than one OAEP block are split, each block is encrypted
// and base64 encoded, and the pieces are joined with Delimiter and wrapped in an
// outer base64 layer.
package chunked

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/whisperchain/whisperchain/internal/errs"
)

// Delimiter separates base64 chunks inside the outer envelope.
const Delimiter = "|CHUNK|"

// DefaultBits is the modulus size of keys produced by GenerateKeyPair.
const DefaultBits = 2048

var b64 = base64.StdEncoding

// MaxChunk returns the largest plaintext one OAEP block can carry under pub.
func MaxChunk(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// Encrypt seals plaintext for pub. Empty plaintext yields a single-block ciphertext.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	maxChunk := MaxChunk(pub)
	if maxChunk <= 0 {
		return "", errors.New("invalid OAEP max chunk size")
	}

	if len(plaintext) <= maxChunk {
		block, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
		if err != nil {
			return "", fmt.Errorf("encrypt: %w", err)
		}
		return b64.EncodeToString(block), nil
	}

	parts := make([]string, 0, (len(plaintext)+maxChunk-1)/maxChunk)
	for i := 0; i < len(plaintext); i += maxChunk {
		end := min(i+maxChunk, len(plaintext))
		block, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext[i:end], nil)
		if err != nil {
			return "", fmt.Errorf("encrypt chunk %d: %w", len(parts), err)
		}
		parts = append(parts, b64.EncodeToString(block))
	}
	return b64.EncodeToString([]byte(strings.Join(parts, Delimiter))), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure is reported as
// errs.ErrDecryptionFailed and no partial plaintext is returned.
func Decrypt(priv *rsa.PrivateKey, ciphertext string) ([]byte, error) {
	outer, err := b64.DecodeString(ciphertext)
	if err != nil {
		return nil, errs.ErrDecryptionFailed
	}

	if !bytes.Contains(outer, []byte(Delimiter)) {
		plain, err := rsa.DecryptOAEP(sha256.New(), nil, priv, outer, nil)
		if err != nil {
			return nil, errs.ErrDecryptionFailed
		}
		return plain, nil
	}

	var out []byte
	for _, part := range strings.Split(string(outer), Delimiter) {
		block, err := b64.DecodeString(part)
		if err != nil || len(block) == 0 {
			return nil, errs.ErrDecryptionFailed
		}
		plain, err := rsa.DecryptOAEP(sha256.New(), nil, priv, block, nil)
		if err != nil {
			return nil, errs.ErrDecryptionFailed
		}
		out = append(out, plain...)
	}
	return out, nil
}

// ParsePublicKey decodes a base64 DER SPKI RSA public key.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := b64.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errs.Validation("public key is not valid base64")
	}
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errs.Validation("public key is not a valid SPKI structure")
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, errs.Validation("public key is not an RSA key")
	}
	if MaxChunk(pub) <= 0 {
		return nil, errs.Validation("public key is too small")
	}
	return pub, nil
}

// ParsePrivateKey decodes a base64 DER PKCS#8 RSA private key.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := b64.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.New("private key is not valid base64")
	}
	return parsePKCS8(der)
}

// ParsePrivateKeyDER decodes a raw PKCS#8 DER RSA private key.
func ParsePrivateKeyDER(der []byte) (*rsa.PrivateKey, error) { return parsePKCS8(der) }

func parsePKCS8(der []byte) (*rsa.PrivateKey, error) {
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8: %w", err)
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return priv, nil
}

// MarshalPublicKey encodes pub as base64 DER SPKI.
func MarshalPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(der), nil
}

// MarshalPrivateKey encodes priv as base64 DER PKCS#8.
func MarshalPrivateKey(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(der), nil
}

// GenerateKeyPair creates an RSA key pair and returns (public SPKI, private PKCS#8), both base64.
func GenerateKeyPair(bits int) (pub, priv string, err error) {
	if bits == 0 {
		bits = DefaultBits
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", err
	}
	if pub, err = MarshalPublicKey(&k.PublicKey); err != nil {
		return "", "", err
	}
	if priv, err = MarshalPrivateKey(k); err != nil {
		return "", "", err
	}
	return pub, priv, nil
}

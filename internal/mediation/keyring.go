// Package mediation holds the server RSA key pair and re-encrypts flagged
// messages from the server key to a moderator's key.
package mediation

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/crypto/keywrap"
	"github.com/whisperchain/whisperchain/internal/errs"
)

// Keyring is the process-wide server key pair. The private key DER is kept in a
// memguard enclave and only unsealed for the duration of a decrypt call.
type Keyring struct {
	public    *rsa.PublicKey
	publicB64 string
	private   *memguard.Enclave
}

// LoadKeyring validates and seals the configured key pair. privateKey is either a
// base64 PKCS#8 DER or a keywrap value opened with passphrase.
func LoadKeyring(publicKey, privateKey string, passphrase []byte) (*Keyring, error) {
	publicKey, privateKey = strings.TrimSpace(publicKey), strings.TrimSpace(privateKey)
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("%w: key pair not configured", errs.ErrServerKeyUnavailable)
	}

	pub, err := chunked.ParsePublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", errs.ErrServerKeyUnavailable, err)
	}

	var der []byte
	if keywrap.IsWrapped(privateKey) {
		der, err = keywrap.Unwrap(passphrase, privateKey)
	} else {
		der, err = base64.StdEncoding.DecodeString(privateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", errs.ErrServerKeyUnavailable, err)
	}

	priv, err := chunked.ParsePrivateKeyDER(der)
	if err != nil {
		memguard.WipeBytes(der)
		return nil, fmt.Errorf("%w: private key: %v", errs.ErrServerKeyUnavailable, err)
	}
	if !priv.PublicKey.Equal(pub) {
		memguard.WipeBytes(der)
		return nil, fmt.Errorf("%w: public and private keys do not match", errs.ErrServerKeyUnavailable)
	}

	return &Keyring{
		public:    pub,
		publicB64: publicKey,
		private:   memguard.NewEnclave(der), // wipes der
	}, nil
}

// PublicKey returns the base64 SPKI public key distributed to clients.
func (k *Keyring) PublicKey() string { return k.publicB64 }

// Encrypt seals plaintext under the server public key.
func (k *Keyring) Encrypt(plaintext []byte) (string, error) {
	return chunked.Encrypt(k.public, plaintext)
}

// Decrypt opens a ciphertext addressed to the server key.
func (k *Keyring) Decrypt(ciphertext string) ([]byte, error) {
	buf, err := k.private.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open enclave: %v", errs.ErrServerKeyUnavailable, err)
	}
	defer buf.Destroy()

	priv, err := chunked.ParsePrivateKeyDER(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrServerKeyUnavailable, err)
	}
	return chunked.Decrypt(priv, ciphertext)
}

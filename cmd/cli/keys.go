package main

import (
	"bufio"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/crypto/keywrap"
)

// passphraseEnv lets scripts supply the key passphrase without a terminal.
const passphraseEnv = "WC_PASSPHRASE"

// readPassphrase reads a passphrase from WC_PASSPHRASE or, failing that, the terminal.
func readPassphrase(prompt string) ([]byte, error) {
	if v := os.Getenv(passphraseEnv); v != "" {
		return []byte(v), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("no terminal for passphrase; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return p, nil
}

// readLine prompts on stderr and reads one line from stdin.
func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// writeKeyPair stores a fresh key pair as <prefix>.pub and <prefix>.key. With a
// passphrase the private half is wrapped.
func writeKeyPair(prefix string, bits int, passphrase []byte) (pubPath, privPath string, err error) {
	pub, priv, err := chunked.GenerateKeyPair(bits)
	if err != nil {
		return "", "", err
	}
	if len(passphrase) > 0 {
		der, err := base64.StdEncoding.DecodeString(priv)
		if err != nil {
			return "", "", err
		}
		priv, err = keywrap.Wrap(passphrase, der)
		memguard.WipeBytes(der)
		if err != nil {
			return "", "", err
		}
	}
	pubPath, privPath = prefix+".pub", prefix+".key"
	if err := os.WriteFile(pubPath, []byte(pub+"\n"), 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(privPath, []byte(priv+"\n"), 0o600); err != nil {
		return "", "", err
	}
	return pubPath, privPath, nil
}

// loadPublicKey reads and validates a base64 SPKI key file.
func loadPublicKey(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if _, err := chunked.ParsePublicKey(s); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// loadPrivateKey reads a private key file, unwrapping it when protected.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(b))
	if !keywrap.IsWrapped(s) {
		return chunked.ParsePrivateKey(s)
	}
	pass, err := readPassphrase("passphrase for " + path + ": ")
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(pass)
	der, err := keywrap.Unwrap(pass, s)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(der)
	return chunked.ParsePrivateKeyDER(der)
}

// seal encrypts plaintext for a base64 SPKI key.
func seal(pubB64 string, plaintext []byte) (string, error) {
	pub, err := chunked.ParsePublicKey(pubB64)
	if err != nil {
		return "", err
	}
	return chunked.Encrypt(pub, plaintext)
}

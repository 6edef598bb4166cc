package keywrap

import (
	"bytes"
	"crypto/subtle"
	"testing"
)

func TestDeriveKEK_DeterministicAndSaltDependent(t *testing.T) {
	t.Parallel()
	pw := []byte("secret-pass")
	k1 := DeriveKEK(pw, []byte("salt-1"))
	k2 := DeriveKEK(pw, []byte("salt-1"))
	if subtle.ConstantTimeCompare(k1, k2) != 1 {
		t.Fatalf("DeriveKEK not deterministic")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKEK(pw, []byte("salt-2"))) != 0 {
		t.Fatalf("DeriveKEK must change with salt")
	}
	if len(k1) != KEKLen {
		t.Fatalf("len=%d, want=%d", len(k1), KEKLen)
	}
}

func TestWrapUnwrap(t *testing.T) {
	t.Parallel()
	secret := []byte("MIIEvQIBADANBgkqhkiG9w0BAQEFAASC")

	w, err := Wrap([]byte("pw"), secret)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if !IsWrapped(w) {
		t.Fatalf("missing prefix: %q", w)
	}

	out, err := Unwrap([]byte("pw"), w)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(out, secret) {
		t.Fatalf("unwrapped mismatch")
	}

	w2, _ := Wrap([]byte("pw"), secret)
	if w == w2 {
		t.Fatalf("two wraps of the same secret must differ")
	}
}

func TestUnwrap_Errors(t *testing.T) {
	t.Parallel()
	w, err := Wrap([]byte("right"), []byte("s"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := Unwrap([]byte("wrong"), w); err != ErrBadPassphrase {
		t.Fatalf("want ErrBadPassphrase, got %v", err)
	}
	if _, err := Unwrap([]byte("right"), Prefix+"AAAA"); err == nil {
		t.Fatalf("expected error on short input")
	}
	if _, err := Wrap(nil, []byte("s")); err == nil {
		t.Fatalf("expected error on empty passphrase")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "whisperchain")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(sessionPath(), base) || !strings.HasSuffix(sessionPath(), "session.json") {
		t.Fatalf("sessionPath unexpected: %s", sessionPath())
	}
}

func Test_session_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadSession(); err == nil {
		t.Fatalf("expected error when session file missing")
	}
	in := sessionFile{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute), UID: "u1", Email: "a@wc.test"}
	if err := saveSession(in); err != nil {
		t.Fatalf("saveSession: %v", err)
	}
	got, err := loadSession()
	if err != nil || got.AccessToken != "tok" || got.UID != "u1" {
		t.Fatalf("loadSession: %+v err=%v", got, err)
	}
	st, err := os.Stat(sessionPath())
	if err != nil || st.Mode().Perm() != 0o600 {
		t.Fatalf("session file must be private: %v %v", st.Mode(), err)
	}

	in.ExpiresAt = time.Now().Add(-time.Minute)
	if err := saveSession(in); err != nil {
		t.Fatalf("saveSession expired: %v", err)
	}
	if _, err := loadSession(); err == nil {
		t.Fatalf("want error for expired session")
	}
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.txt")
	_ = os.WriteFile(tmp, []byte("hello"), 0o600)
	b, err := readAll(tmp)
	if err != nil || string(b) != "hello" {
		t.Fatalf("readAll(file): %q %v", b, err)
	}

	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	if err != nil || string(b) != "from-stdin" {
		t.Fatalf("readAll(stdin): %q %v", b, err)
	}
}

func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()
	fn()
	_ = w.Close()
	out, _ := io.ReadAll(r)
	return out
}

func Test_printJSON_WritesPretty(t *testing.T) {
	out := captureStdout(t, func() { printJSON(map[string]any{"a": 1}) })

	var m map[string]any
	if json.Unmarshal(out, &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", string(out))
	}
	if !bytes.Contains(out, []byte("\n")) {
		t.Fatalf("printJSON should indent")
	}
}

func Test_bearerCreds_Metadata(t *testing.T) {
	t.Parallel()

	b := bearerCreds{token: "T", secure: true}
	md, err := b.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetRequestMetadata: %v", err)
	}
	if md["authorization"] != "Bearer T" {
		t.Fatalf("auth header mismatch: %v", md)
	}
	if !b.RequireTransportSecurity() {
		t.Fatalf("bearerCreds over TLS must require it")
	}
	if (bearerCreds{token: "T"}).RequireTransportSecurity() {
		t.Fatalf("plaintext creds must not require TLS")
	}
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	creds, err := loadTLS("", true)
	if err != nil || creds == nil {
		t.Fatalf("insecure: %v %v", creds, err)
	}

	creds, err = loadTLS("", false)
	if err != nil || creds == nil {
		t.Fatalf("default tls: %v %v", creds, err)
	}

	tmp := filepath.Join(t.TempDir(), "bad.pem")
	_ = os.WriteFile(tmp, []byte("not pem"), 0o600)
	creds, err = loadTLS(tmp, false)
	if err == nil || creds != nil {
		t.Fatalf("bad CA should error, got creds=%v err=%v", creds, err)
	}
}

func Test_withTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := withTimeout()
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("deadline not set")
	}
	if rem := time.Until(dl); rem < 25*time.Second || rem > 35*time.Second {
		t.Fatalf("unexpected timeout window: %v", rem)
	}
}

func Test_commands_Registered(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"keygen", "login", "send", "inbox", "flag", "queue", "moderate", "round", "audit"} {
		if commands[name] == nil {
			t.Fatalf("command %q not registered", name)
		}
	}
}

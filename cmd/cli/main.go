// Command wc is a CLI client for the WhisperChain+ service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/whisperchain/whisperchain/internal/api"
)

// ---- config/session store ----

type sessionFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "whisperchain")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "whisperchain")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(s sessionFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(sessionPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func loadSession() (sessionFile, error) {
	var s sessionFile
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return s, errors.New("not logged in (run: wc login)")
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	if s.AccessToken == "" || time.Now().After(s.ExpiresAt) {
		return s, errors.New("session expired (run: wc login)")
	}
	return s, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// conn holds the global connection flags.
type conn struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
}

func (c conn) dial(ctx context.Context, bearer string) (*grpc.ClientConn, *api.Client, error) {
	var opts []grpc.DialOption
	if c.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(c.caPath, c.skipVerify)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !c.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, c.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// session dials with the stored session token.
func (c conn) session(ctx context.Context) (*grpc.ClientConn, *api.Client, sessionFile, error) {
	s, err := loadSession()
	if err != nil {
		return nil, nil, s, err
	}
	cc, cli, err := c.dial(ctx, s.AccessToken)
	return cc, cli, s, err
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func usage() {
	fmt.Fprintf(os.Stderr, `wc CLI
Usage:
  wc [--addr HOST:PORT] [--cacert file | --insecure | --plaintext] <cmd> [args]

Local:
  version
  keygen      --out <prefix> [--bits 2048] [--protect]
  encrypt     --key <pub file> [--file f|-]
  decrypt     --key <private file> [--file f|-]

Accounts:
  register    --email e --name n --role sender|recipient|moderator [--key <pub file>]
  login       --email e [--code 123456]              (saves session)
  whoami
  set-key     --key <pub file>
  moderator-key --key <pub file>
  server-key

Messaging:
  token
  send        --to <uid> [--file f|-] [--text s]
  inbox       [--page n] [--limit n] [--key <private file>]
  sent        [--page n] [--limit n]
  read                                                (mark all read)
  unread
  flag        --id <message id> --key <private file> [--reason r] [--severity low|medium|high] [--tag t]...
  unflag      --id <message id>

Moderation and administration:
  queue       [--status pending] [--key <moderator private file>]
  queue-count
  moderate    --id <message id> --action approve|reject|suspend_sender [--note s]
  freeze      --token <token>
  suspend     --uid <uid> [--off]
  pending
  assign-role --uid <uid> --role <role>
  idle        --uid <uid>
  reactivate  --uid <uid>
  round       start|end|active
  audit       [--action A] [--round n] [--limit n]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	var c conn
	pflag.StringVar(&c.addr, "addr", "localhost:8443", "server addr")
	pflag.StringVar(&c.caPath, "cacert", "", "CA cert (PEM)")
	pflag.BoolVar(&c.skipVerify, "insecure", false, "skip cert verify (dev)")
	pflag.BoolVar(&c.plaintext, "plaintext", false, "connect without TLS (dev)")
	pflag.CommandLine.SetInterspersed(false)
	pflag.Usage = usage
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
	}
	name, args := pflag.Arg(0), pflag.Args()[1:]
	if name == "version" {
		fmt.Printf("wc %s (%s)\n", version, buildDate)
		return
	}
	run, ok := commands[name]
	if !ok {
		usage()
	}

	ctx, cancel := withTimeout()
	defer cancel()
	if err := run(ctx, c, args); err != nil {
		fail(err)
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// Package config loads server settings from defaults, an optional .env file,
// an optional config file, WC_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the server settings.
type Config struct {
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	Store          string        `mapstructure:"store"`
	DSN            string        `mapstructure:"dsn"`
	JWTKey         string        `mapstructure:"jwt_key"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TLSCert        string        `mapstructure:"tls_cert"`
	TLSKey         string        `mapstructure:"tls_key"`
	Insecure       bool          `mapstructure:"insecure"`

	ServerPublicKey     string `mapstructure:"server_public_key"`
	ServerPrivateKey    string `mapstructure:"server_private_key"`
	ServerKeyPassphrase string `mapstructure:"server_key_passphrase"`

	RedisURL             string        `mapstructure:"redis_url"`
	MailStream           string        `mapstructure:"mail_stream"`
	VerificationTTL      time.Duration `mapstructure:"verification_ttl"`
	VerificationCooldown time.Duration `mapstructure:"verification_cooldown"`
	VerifyWindow         time.Duration `mapstructure:"verify_window"`
	VerifyMaxFails       int           `mapstructure:"verify_max_fails"`
	VerifyBlockFor       time.Duration `mapstructure:"verify_block_for"`

	AuditRetries uint64 `mapstructure:"audit_retries"`

	BootstrapAdminEmail string `mapstructure:"bootstrap_admin_email"`
	BootstrapAdminName  string `mapstructure:"bootstrap_admin_name"`

	Dev bool `mapstructure:"dev"`
}

func flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("wc-server", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("env-file", ".env", "dotenv file loaded before the environment is read")
	fs.String("grpc-addr", ":8443", "gRPC listen address")
	fs.String("http-addr", ":8080", "ops HTTP listen address")
	fs.String("store", StorePostgres, "storage backend: postgres or memory")
	fs.String("dsn", "", "PostgreSQL DSN")
	fs.String("jwt-key", "", "HS256 signing key")
	fs.Duration("access-ttl", 15*time.Minute, "session token TTL")
	fs.Duration("request-timeout", 10*time.Second, "per-request deadline")
	fs.String("tls-cert", "cert.pem", "TLS certificate (PEM)")
	fs.String("tls-key", "key.pem", "TLS private key (PEM)")
	fs.Bool("insecure", false, "serve gRPC without TLS")
	fs.String("server-public-key", "", "server RSA public key, base64 SPKI")
	fs.String("server-private-key", "", "server RSA private key, base64 PKCS8 or wrapped")
	fs.String("server-key-passphrase", "", "passphrase for a wrapped server private key")
	fs.String("redis-url", "", "Redis URL for the verification mail stream")
	fs.String("mail-stream", "wc:mail", "Redis stream receiving mail jobs")
	fs.Duration("verification-ttl", 5*time.Minute, "verification code validity")
	fs.Duration("verification-cooldown", 5*time.Minute, "minimum delay between codes")
	fs.Duration("verify-window", 15*time.Minute, "window in which failed verifications are counted")
	fs.Int("verify-max-fails", 5, "failed verifications before a block")
	fs.Duration("verify-block-for", 5*time.Minute, "verification block duration")
	fs.Uint64("audit-retries", 3, "retries for a failed audit write")
	fs.String("bootstrap-admin-email", "", "create this admin on first start")
	fs.String("bootstrap-admin-name", "admin", "display name of the bootstrap admin")
	fs.Bool("dev", false, "development logging and log-only mail")
	return fs
}

// Load resolves the configuration for args (without the program name).
func Load(args []string) (*Config, error) {
	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := fs.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && fs.Changed("env-file") {
		return nil, fmt.Errorf("env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	return &c, nil
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	var err error
	if c.JWTKey == "" {
		err = errors.Join(err, errors.New("jwt_key is required"))
	}
	if c.ServerPublicKey == "" || c.ServerPrivateKey == "" {
		err = errors.Join(err, errors.New("server_public_key and server_private_key are required"))
	}
	switch c.Store {
	case StorePostgres:
		if c.DSN == "" {
			err = errors.Join(err, errors.New("dsn is required for the postgres store"))
		}
	case StoreMemory:
	default:
		err = errors.Join(err, fmt.Errorf("unknown store %q", c.Store))
	}
	if !c.Insecure && (c.TLSCert == "" || c.TLSKey == "") {
		err = errors.Join(err, errors.New("tls_cert and tls_key are required unless insecure"))
	}
	if c.AccessTTL <= 0 || c.RequestTimeout <= 0 {
		err = errors.Join(err, errors.New("access_ttl and request_timeout must be positive"))
	}
	if c.VerifyWindow <= 0 || c.VerifyBlockFor <= 0 {
		err = errors.Join(err, errors.New("verify_window and verify_block_for must be positive"))
	}
	if c.VerifyMaxFails < 1 {
		err = errors.Join(err, errors.New("verify_max_fails must be at least 1"))
	}
	return err
}

// Command wc-server starts the WhisperChain+ gRPC server and its ops HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/whisperchain/whisperchain/internal/api"
	"github.com/whisperchain/whisperchain/internal/audit"
	"github.com/whisperchain/whisperchain/internal/auth"
	"github.com/whisperchain/whisperchain/internal/config"
	"github.com/whisperchain/whisperchain/internal/limiter"
	"github.com/whisperchain/whisperchain/internal/mediation"
	"github.com/whisperchain/whisperchain/internal/migrate"
	"github.com/whisperchain/whisperchain/internal/notify"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/repository/memory"
	"github.com/whisperchain/whisperchain/internal/repository/postgres"
	grpcserver "github.com/whisperchain/whisperchain/internal/server/grpc"
	httpserver "github.com/whisperchain/whisperchain/internal/server/http"
	"github.com/whisperchain/whisperchain/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// repos bundles the storage the services are built on.
type repos struct {
	users    repository.UserRepository
	rounds   repository.RoundRepository
	tokens   repository.TokenRepository
	messages repository.MessageRepository
	flags    repository.FlagRepository
	audit    repository.AuditRepository
	codes    repository.VerificationRepository
	lim      limiter.Limiter
	ping     httpserver.Check
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*repos, error) {
	pol := limiter.Policy{Window: cfg.VerifyWindow, MaxFails: cfg.VerifyMaxFails, BlockFor: cfg.VerifyBlockFor}

	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on exit")
		s := memory.New()
		return &repos{
			users:    s.Users(),
			rounds:   s.Rounds(),
			tokens:   s.Tokens(),
			messages: s.Messages(),
			flags:    s.Flags(),
			audit:    s.Audit(),
			codes:    s.Verification(),
			lim:      limiter.NewMemory(pol),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	applied, err := migrate.Up(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	log.Info("migrations applied", zap.Int64("version", applied))

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &repos{
		users:    postgres.NewUserRepo(db),
		rounds:   postgres.NewRoundRepo(db),
		tokens:   postgres.NewTokenRepo(db),
		messages: postgres.NewMessageRepo(db),
		flags:    postgres.NewFlagRepo(db),
		audit:    postgres.NewAuditRepo(db),
		codes:    postgres.NewVerificationRepo(db),
		lim:      limiter.NewPG(db.Pool, pol),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}

// main loads configuration and runs the server; exit code 2 means bad flags or config file.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
	_ = logger.Sync()
}

// run opens storage and serves gRPC and ops HTTP until a signal arrives. Every
// resource it acquires is released by a deferred call before it returns.
func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("http", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
	)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Signals are handled below, so the enclaves are purged on every return path.
	defer memguard.Purge()

	keys, err := mediation.LoadKeyring(cfg.ServerPublicKey, cfg.ServerPrivateKey, []byte(cfg.ServerKeyPassphrase))
	if err != nil {
		return fmt.Errorf("server key: %w", err)
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.close()

	checks := map[string]httpserver.Check{"store": st.ping}
	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.RedisURL != "" {
		rdb, err := notify.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		sender = notify.NewRedisSender(rdb, cfg.MailStream)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else if !cfg.Dev {
		logger.Warn("redis_url not set, verification codes are only logged")
	}

	// Services
	rec := audit.NewRecorder(st.audit, logger, cfg.AuditRetries)
	iss := auth.NewIssuer([]byte(cfg.JWTKey), cfg.AccessTTL)
	mediator := mediation.NewMediator(keys, logger)
	svc := grpcserver.Services{
		Users: service.NewUserService(st.users, rec, logger),
		Verification: service.NewVerificationService(st.users, st.codes, st.lim, sender, iss,
			cfg.VerificationTTL, cfg.VerificationCooldown, logger),
		Rounds:     service.NewRoundService(st.rounds, rec, logger),
		Messages:   service.NewMessageService(st.rounds, st.tokens, st.messages, st.flags, rec, logger),
		Moderation: service.NewModerationService(st.users, st.tokens, st.flags, mediator, rec, logger),
		Audit:      rec,
	}

	if cfg.BootstrapAdminEmail != "" {
		u, created, err := svc.Users.BootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminName)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("uid", u.UID))
		}
	}

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.TimeoutUnary(cfg.RequestTimeout),
			grpcserver.AuthUnary(iss, st.users),
		),
	}
	if cfg.Insecure {
		logger.Warn("serving gRPC without TLS")
	} else {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	api.RegisterWhisperChainServer(s, grpcserver.New(svc))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ops := httpserver.New(httpserver.Options{
		ServerPublicKey: mediator.ServerPublicKey(),
		Checks:          checks,
		Log:             logger,
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", !cfg.Insecure))
		errCh <- s.Serve(lis)
	}()
	go func() {
		if err := ops.Listen(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Stop()
	}
	_ = ops.ShutdownWithTimeout(5 * time.Second)
	return serveErr
}

// Package notify delivers verification codes. Delivery itself is delegated: the
// Redis sender queues a mail job on a stream consumed by an external mailer.
package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/metrics"
)

// Sender hands a verification code to the mail pipeline.
type Sender interface {
	SendVerification(ctx context.Context, email, code string) error
}

// RedisSender appends one entry per code to a Redis stream.
type RedisSender struct {
	rdb    redis.UniversalClient
	stream string
}

// NewRedisSender constructs a sender writing to stream.
func NewRedisSender(rdb redis.UniversalClient, stream string) *RedisSender {
	return &RedisSender{rdb: rdb, stream: stream}
}

// NewRedisClient parses url (redis://...) into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// SendVerification queues the mail job.
func (s *RedisSender) SendVerification(ctx context.Context, email, code string) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: []string{"kind", "verification", "email", email, "code", code},
	}).Err()
	if err != nil {
		metrics.VerificationEmails.WithLabelValues("error").Inc()
		return fmt.Errorf("queue verification mail: %w", err)
	}
	metrics.VerificationEmails.WithLabelValues("queued").Inc()
	return nil
}

// LogSender writes codes to the log. Only meant for development setups without Redis.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.With(zap.String("component", "notify"))}
}

// SendVerification logs the code at debug level.
func (s *LogSender) SendVerification(_ context.Context, email, code string) error {
	s.log.Debug("verification code", zap.String("email", email), zap.String("code", code))
	metrics.VerificationEmails.WithLabelValues("logged").Inc()
	return nil
}

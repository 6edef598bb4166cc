package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/auth"
	"github.com/whisperchain/whisperchain/internal/crypto"
	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/limiter"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/notify"
	"github.com/whisperchain/whisperchain/internal/repository"
)

// Session is an issued API session.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      model.User
}

// VerificationService proves email ownership with one-time codes and issues sessions.
type VerificationService struct {
	users    repository.UserRepository
	codes    repository.VerificationRepository
	lim      limiter.Limiter
	sender   notify.Sender
	issuer   *auth.Issuer
	ttl      time.Duration
	cooldown time.Duration
	log      *zap.Logger
	Clock    Clock
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(
	users repository.UserRepository,
	codes repository.VerificationRepository,
	lim limiter.Limiter,
	sender notify.Sender,
	issuer *auth.Issuer,
	ttl, cooldown time.Duration,
	log *zap.Logger,
) *VerificationService {
	return &VerificationService{
		users:    users,
		codes:    codes,
		lim:      lim,
		sender:   sender,
		issuer:   issuer,
		ttl:      ttl,
		cooldown: cooldown,
		log:      log.With(zap.String("component", "verification")),
	}
}

func rateLimited(wait time.Duration) error {
	secs := int(math.Ceil(wait.Seconds()))
	return errs.New(errs.ErrRateLimited, fmt.Sprintf("too many requests, retry in %ds", max(secs, 1)))
}

// RequestCode mails a fresh code to email. Unknown addresses get the same answer
// as known ones.
func (s *VerificationService) RequestCode(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Debug("code requested for unknown email")
			return nil
		}
		return err
	}

	now := s.Clock.now()
	last, err := s.codes.LatestUnused(ctx, email, now.Add(-s.cooldown))
	switch {
	case err == nil:
		return rateLimited(last.CreatedAt.Add(s.cooldown).Sub(now))
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}

	code, err := crypto.NewVerificationCode()
	if err != nil {
		return err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return err
	}
	id, err := newID()
	if err != nil {
		return err
	}
	vc := model.VerificationCode{
		ID:        id,
		Email:     email,
		CodeHash:  crypto.HashCode([]byte(code), salt),
		Salt:      salt,
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, vc); err != nil {
		return err
	}
	if err := s.sender.SendVerification(ctx, email, code); err != nil {
		// an undelivered code must not hold the cooldown
		if uerr := s.codes.MarkUsed(context.WithoutCancel(ctx), vc.ID); uerr != nil {
			s.log.Error("undelivered code not invalidated", zap.Error(uerr))
		}
		return fmt.Errorf("deliver verification code: %w", err)
	}
	return nil
}

// VerifyCode checks a code under the attempt limiter and returns a session on success.
// Failures count both for the calling client and for the account as a whole, so a
// blocked account rejects codes from every address until the block expires.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code, client string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(code) != crypto.CodeDigits {
		return Session{}, errs.Validation("code must have 6 digits")
	}
	slots := [][]byte{limiter.AccountWide, limiter.HashClient(client)}

	for _, h := range slots {
		allowed, wait, err := s.lim.Allow(ctx, email, h)
		if err != nil {
			return Session{}, err
		}
		if !allowed {
			return Session{}, rateLimited(wait)
		}
	}

	now := s.Clock.now()
	vc, err := s.codes.LatestUnused(ctx, email, now.Add(-s.ttl))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return Session{}, err
	}
	if vc == nil || !crypto.VerifyCode([]byte(code), vc.Salt, vc.CodeHash) {
		if blocked, wait := s.fail(ctx, email, slots); blocked {
			return Session{}, rateLimited(wait)
		}
		return Session{}, errs.New(errs.ErrUnauthorized, "invalid or expired code")
	}

	if err := s.codes.MarkUsed(ctx, vc.ID); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return Session{}, errs.New(errs.ErrUnauthorized, "invalid or expired code")
		}
		return Session{}, err
	}
	for _, h := range slots {
		if err := s.lim.Success(ctx, email, h); err != nil {
			s.log.Warn("limiter reset failed", zap.Error(err))
		}
	}
	if err := s.users.MarkEmailVerified(ctx, email, now); err != nil {
		return Session{}, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}

	token, exp, err := s.issuer.Issue(u.UID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: *u}, nil
}

// fail records a failed attempt in every slot and reports the longest block it caused.
func (s *VerificationService) fail(ctx context.Context, email string, slots [][]byte) (bool, time.Duration) {
	var (
		blocked bool
		wait    time.Duration
	)
	for _, h := range slots {
		b, w, err := s.lim.Failure(ctx, email, h)
		if err != nil {
			s.log.Warn("limiter failure not recorded", zap.Error(err))
			continue
		}
		if b {
			blocked, wait = true, max(wait, w)
		}
	}
	return blocked, wait
}

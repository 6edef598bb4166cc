package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/whisperchain/whisperchain/internal/auth"
	"github.com/whisperchain/whisperchain/internal/crypto"
	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/limiter"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
)

type fakeUsers struct {
	repository.UserRepository
	byEmail map[string]*model.User

	getErr    error
	verifyErr error
	verified  []string
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, email string, _ time.Time) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	f.verified = append(f.verified, email)
	return nil
}

type fakeCodes struct {
	repository.VerificationRepository
	code    *model.VerificationCode
	lookErr error
	usedErr error
}

func (f *fakeCodes) LatestUnused(context.Context, string, time.Time) (*model.VerificationCode, error) {
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	if f.code == nil {
		return nil, errs.ErrNotFound
	}
	c := *f.code
	return &c, nil
}

func (f *fakeCodes) MarkUsed(context.Context, string) error { return f.usedErr }

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 90 * time.Second, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, time.Minute, l.failErr
}

func stubCode(t *testing.T, code string) *model.VerificationCode {
	t.Helper()
	salt, err := crypto.RandBytes(16)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	return &model.VerificationCode{ID: "c1", Email: "alice@wc.test", Salt: salt, CodeHash: crypto.HashCode([]byte(code), salt)}
}

func TestVerifyCode_LimiterAndRepoErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	users := &fakeUsers{byEmail: map[string]*model.User{"alice@wc.test": {UID: "u1", Email: "alice@wc.test"}}}
	codes := &fakeCodes{code: stubCode(t, "424242")}
	lim := &fakeLimiter{allowOK: true}
	s := NewVerificationService(users, codes, lim, &inbox{}, auth.NewIssuer([]byte("k"), time.Minute),
		5*time.Minute, 5*time.Minute, zaptest.NewLogger(t))

	lim.allowErr = errors.New("lim-err")
	if _, err := s.VerifyCode(ctx, "alice@wc.test", "424242", "1.2.3.4"); err == nil || errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want limiter error propagated, got %v", err)
	}
	lim.allowErr = nil

	lim.allowOK = false
	_, err := s.VerifyCode(ctx, "alice@wc.test", "424242", "1.2.3.4")
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if got := errs.Message(err); got != "too many requests, retry in 90s" {
		t.Fatalf("unexpected message %q", got)
	}
	lim.allowOK = true

	lim.failBlocked = true
	if _, err := s.VerifyCode(ctx, "alice@wc.test", "000001", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocking failure, got %v", err)
	}

	// a limiter that cannot record the failure still answers unauthorized
	lim.failErr = errors.New("db down")
	if _, err := s.VerifyCode(ctx, "alice@wc.test", "000001", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	lim.failBlocked, lim.failErr = false, nil

	codes.lookErr = errors.New("boom")
	if _, err := s.VerifyCode(ctx, "alice@wc.test", "424242", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want propagated repo error, got %v", err)
	}
	codes.lookErr = nil

	codes.usedErr = errs.New(errs.ErrConflict, "verification code already used")
	if _, err := s.VerifyCode(ctx, "alice@wc.test", "424242", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on raced code, got %v", err)
	}
	codes.usedErr = nil

	lim.successErr = errors.New("ignored")
	sess, err := s.VerifyCode(ctx, "alice@wc.test", "424242", "")
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if sess.Token == "" || sess.User.UID != "u1" {
		t.Fatalf("bad session: %+v", sess)
	}
	// both the client and the account slot are reset
	if lim.successCalls != 2 || len(users.verified) != 1 {
		t.Fatalf("success path not completed: success=%d verified=%v", lim.successCalls, users.verified)
	}
}

func TestRequestCode_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	users := &fakeUsers{byEmail: map[string]*model.User{"alice@wc.test": {UID: "u1"}}}
	codes := &fakeCodes{}
	s := NewVerificationService(users, codes, &fakeLimiter{}, &inbox{}, auth.NewIssuer([]byte("k"), time.Minute),
		5*time.Minute, 5*time.Minute, zaptest.NewLogger(t))

	if err := s.RequestCode(ctx, "nonsense"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}

	users.getErr = errors.New("db down")
	if err := s.RequestCode(ctx, "alice@wc.test"); err == nil {
		t.Fatalf("want propagated lookup error")
	}
	users.getErr = nil

	codes.lookErr = errors.New("db down")
	if err := s.RequestCode(ctx, "alice@wc.test"); err == nil {
		t.Fatalf("want propagated code lookup error")
	}
}

// flakySender fails while down is set and otherwise delivers to box.
type flakySender struct {
	box  *inbox
	down bool
}

func (f *flakySender) SendVerification(ctx context.Context, email, code string) error {
	if f.down {
		return errors.New("XADD: connection refused")
	}
	return f.box.SendVerification(ctx, email, code)
}

func TestRequestCode_FailedDeliveryReleasesCooldown(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.register(t, "alice@wc.test", "sender", "")

	box := &inbox{}
	snd := &flakySender{box: box, down: true}
	lim := limiter.NewMemory(limiter.Policy{Window: time.Minute, MaxFails: 3, BlockFor: time.Minute})
	v := NewVerificationService(w.store.Users(), w.store.Verification(), lim, snd,
		auth.NewIssuer([]byte("k"), time.Minute), 5*time.Minute, 5*time.Minute, zaptest.NewLogger(t))
	v.Clock = func() time.Time { return w.now }

	err := v.RequestCode(ctx, "alice@wc.test")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrRateLimited)

	_, err = w.store.Verification().LatestUnused(ctx, "alice@wc.test", w.now.Add(-time.Hour))
	require.ErrorIs(t, err, errs.ErrNotFound)

	snd.down = false
	require.NoError(t, v.RequestCode(ctx, "alice@wc.test"))
	code := box.last("alice@wc.test")
	require.Len(t, code, 6)

	_, err = v.VerifyCode(ctx, "alice@wc.test", code, "10.0.0.1")
	require.NoError(t, err)
}
